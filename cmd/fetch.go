package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/fetcher"
	"github.com/sells-group/popdensity-cli/internal/resilience"
)

var (
	fetchYears     string
	fetchOverwrite bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download yearly rasters into the data directory",
	Long: `Download the rasters for the given years from fetch.url_template into
data.dir, named so that discovery finds them. Transient FTP and HTTP failures
are retried with backoff; files already present are skipped.`,
	Example: `  popdensity fetch --years 2000-2020`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		years, err := density.ParseYears(fetchYears)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets, err := fetcher.Plan(cfg.Fetch.URLTemplate, dataPattern(), years)
		if err != nil {
			return err
		}
		f, err := fetcher.ForURL(cfg.Fetch.URLTemplate, time.Duration(cfg.Fetch.TimeoutSecs)*time.Second)
		if err != nil {
			return err
		}

		d := &fetcher.Downloader{
			Fetcher:   f,
			Retry:     resilience.FromFetchConfig(cfg.Fetch.MaxAttempts, 0),
			Overwrite: fetchOverwrite,
		}
		results := d.FetchAll(ctx, targets)
		formatFetchResults(cmd.OutOrStdout(), results)

		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("%d of %d downloads failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchYears, "years", "", "years to download, e.g. 2000,2010-2020")
	fetchCmd.Flags().BoolVar(&fetchOverwrite, "overwrite", false, "replace files that already exist")
	_ = fetchCmd.MarkFlagRequired("years")
	rootCmd.AddCommand(fetchCmd)
}
