package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/discovery"
	"github.com/sells-group/popdensity-cli/internal/export"
	"github.com/sells-group/popdensity-cli/internal/store"
)

var (
	queryYears  string
	queryExport string
	queryOut    string
	querySave   bool
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query LAT LON [YEAR]",
	Short: "Query population density at a coordinate",
	Long: `Query population density at a coordinate for one year, a list of years
(--years 2000,2005,2010-2015) or every available year when neither is given.
Multi-year queries also report the density trend.`,
	Example: `  popdensity query 39.9042 116.4074 2020
  popdensity query 39.9042 116.4074 --years 2000-2020 --export geojson`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		coord, err := parseCoordinate(args[0], args[1])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		catalog, err := initCatalog()
		if err != nil {
			return err
		}
		if msg := driverWarning(catalog); msg != "" {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
		}

		var years []int
		if len(args) == 3 {
			y, err := strconv.Atoi(args[2])
			if err != nil {
				return eris.Errorf("invalid year %q", args[2])
			}
			years = []int{y}
		} else {
			years, err = resolveYears(queryYears, catalog)
			if err != nil {
				return err
			}
		}

		b := runQuery(ctx, catalog, coord, years)
		return reportQuery(ctx, cmd.OutOrStdout(), b)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryYears, "years", "", "years to query, e.g. 2000,2010-2020 (default all available)")
	queryCmd.Flags().StringVar(&queryExport, "export", "", "write the report as json, geojson or xlsx")
	queryCmd.Flags().StringVar(&queryOut, "out", "", "export directory (default export.dir)")
	queryCmd.Flags().BoolVar(&querySave, "save", false, "record the run in query history")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the report as JSON instead of text")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(ctx context.Context, catalog discovery.Catalog, coord density.Coordinate, years []int) *density.BatchResult {
	orch := density.NewOrchestrator(newQuerier(), catalog, cfg.Batch.MaxConcurrentYears)
	return orch.Run(ctx, coord, years)
}

// reportQuery prints, exports and saves a finished batch. It fails when no
// requested year succeeded.
func reportQuery(ctx context.Context, out io.Writer, b *density.BatchResult) error {
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return eris.Wrap(err, "encode report")
		}
	} else {
		formatBatch(out, b)
	}

	if queryExport != "" {
		path, err := exportReport(queryExport, queryOut, "", b)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	}

	if querySave {
		id, err := saveBatch(ctx, b)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stderr, "Saved run %s\n", id)
	}

	if len(b.Succeeded) == 0 {
		return eris.Errorf("no requested year succeeded for %s", b.Coordinate)
	}
	return nil
}

// exportReport writes batches in the named format under dir. An empty name
// uses the default report name of the first batch.
func exportReport(formatName, dir, name string, batches ...*density.BatchResult) (string, error) {
	f, err := export.ParseFormat(formatName)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if name == "" {
		name = export.FileName(batches[0], f)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create export dir %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := export.WriteFile(path, f, batches...); err != nil {
		return "", err
	}
	return path, nil
}

func saveBatch(ctx context.Context, b *density.BatchResult) (string, error) {
	st, err := requireStore(ctx)
	if err != nil {
		return "", err
	}
	defer st.Close() //nolint:errcheck

	rec, err := store.NewRunRecord(b)
	if err != nil {
		return "", err
	}
	id, err := st.SaveRun(ctx, rec)
	if err != nil {
		return "", eris.Wrap(err, "save run")
	}
	zap.L().Info("run saved", zap.String("id", id), zap.String("kind", string(rec.Kind)))
	return id, nil
}
