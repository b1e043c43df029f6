package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history [ID]",
	Short: "List saved query runs, or show one",
	Long:  "Without an ID, lists saved runs newest first. With an ID, prints the full saved report as JSON.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "history show")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		filter, err := historyFilter(cmd)
		if err != nil {
			return err
		}
		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("kind", "", "filter by run kind (single, multi)")
	historyCmd.Flags().Int("year", 0, "only runs that requested this year")
	historyCmd.Flags().String("near", "", "only runs at LAT,LON")
	historyCmd.Flags().Float64("tolerance", 0.001, "coordinate tolerance for --near, in degrees")
	historyCmd.Flags().Int("limit", 50, "max number of runs to display")
	historyCmd.Flags().Int("offset", 0, "skip this many runs")
	rootCmd.AddCommand(historyCmd)
}

func historyFilter(cmd *cobra.Command) (store.RunFilter, error) {
	kind, _ := cmd.Flags().GetString("kind")
	year, _ := cmd.Flags().GetInt("year")
	near, _ := cmd.Flags().GetString("near")
	tol, _ := cmd.Flags().GetFloat64("tolerance")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	filter := store.RunFilter{
		Kind:      store.RunKind(kind),
		Year:      year,
		Tolerance: tol,
		Limit:     limit,
		Offset:    offset,
	}
	switch filter.Kind {
	case "", store.RunKindSingle, store.RunKindMulti:
	default:
		return filter, eris.Errorf("invalid --kind %q (want single or multi)", kind)
	}
	if near != "" {
		c, err := parseNear(near)
		if err != nil {
			return filter, err
		}
		filter.Near = &c
	}
	return filter, nil
}

// parseNear reads a "LAT,LON" pair.
func parseNear(s string) (density.Coordinate, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return density.Coordinate{}, eris.Errorf("invalid --near %q (want LAT,LON)", s)
	}
	return parseCoordinate(lat, lon)
}
