package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/discovery"
	"github.com/sells-group/popdensity-cli/internal/export"
	"github.com/sells-group/popdensity-cli/internal/fetcher"
)

var (
	pointsYear   int
	pointsYears  string
	pointsExport string
	pointsOut    string
)

var pointsCmd = &cobra.Command{
	Use:   "points FILE",
	Short: "Query every point in a CSV, XLSX or shapefile",
	Long: `Query population density for each point in a file. CSV, TSV and XLSX
files need a header row with latitude and longitude columns (id and name are
optional); shapefiles must hold point geometries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		points, err := fetcher.ReadPoints(ctx, args[0])
		if err != nil {
			return err
		}
		if len(points) == 0 {
			return eris.Errorf("no points in %s", args[0])
		}

		catalog, err := initCatalog()
		if err != nil {
			return err
		}
		years, err := pointYears(catalog)
		if err != nil {
			return err
		}

		rows, err := processPoints(ctx, catalog, points, years, cfg.Batch.MaxConcurrentPoints)
		if err != nil {
			return err
		}
		formatPointsTable(cmd.OutOrStdout(), rows)

		if pointsExport != "" {
			batches := make([]*density.BatchResult, len(rows))
			for i, r := range rows {
				batches[i] = r.Batch
			}
			path, err := exportReport(pointsExport, pointsOut, pointsFileName(args[0], pointsExport), batches...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
		}
		return nil
	},
}

func init() {
	pointsCmd.Flags().IntVar(&pointsYear, "year", 0, "single year to query")
	pointsCmd.Flags().StringVar(&pointsYears, "years", "", "years to query, e.g. 2000,2010-2020 (default all available)")
	pointsCmd.Flags().StringVar(&pointsExport, "export", "", "write the results as json, geojson or xlsx")
	pointsCmd.Flags().StringVar(&pointsOut, "out", "", "export directory (default export.dir)")
	pointsCmd.MarkFlagsMutuallyExclusive("year", "years")
	rootCmd.AddCommand(pointsCmd)
}

func pointYears(catalog discovery.Catalog) ([]int, error) {
	if pointsYear != 0 {
		return []int{pointsYear}, nil
	}
	return resolveYears(pointsYears, catalog)
}

// pointsFileName names a points report after its input: points_<base>.<ext>.
func pointsFileName(input, formatName string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	f, err := export.ParseFormat(formatName)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("points_%s.%s", base, f.Ext())
}

// processPoints runs the year batch for every point, concurrency points at
// a time. Each point's batch runs its years one at a time so the total
// number of open rasters stays at concurrency. Results keep input order.
func processPoints(ctx context.Context, catalog discovery.Catalog, points []fetcher.Point, years []int, concurrency int) ([]pointRow, error) {
	zap.L().Info("processing points",
		zap.Int("points", len(points)),
		zap.Int("years", len(years)),
		zap.Int("concurrency", concurrency),
	)

	orch := density.NewOrchestrator(newQuerier(), catalog, 1)
	rows := make([]pointRow, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, p := range points {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			b := orch.Run(gctx, p.Coordinate, years)
			rows[i] = pointRow{Point: p, Batch: b}
			if len(b.Failed) == 0 {
				succeeded.Add(1)
			} else {
				failed.Add(1)
				zap.L().Warn("point had failed years",
					zap.String("id", p.ID),
					zap.Ints("failed", b.Failed),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "points cancelled")
	}

	zap.L().Info("points complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("with_failures", failed.Load()),
	)
	return rows, nil
}
