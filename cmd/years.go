package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/popdensity-cli/internal/discovery"
)

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "List the years with raster data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := initCatalog()
		if err != nil {
			return err
		}
		formatYears(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(yearsCmd)
}

// formatYears lists each available year and its file. With nothing found
// in a scanned directory it shows the expected name and any near misses.
func formatYears(out io.Writer, catalog discovery.Catalog) {
	if msg := driverWarning(catalog); msg != "" {
		_, _ = fmt.Fprintf(out, "Warning: %s. Queries for these files will fail.\n", msg)
	}
	years := catalog.Years()
	if len(years) == 0 {
		_, _ = fmt.Fprintln(out, "No raster files found.")
		if r, ok := catalog.(*discovery.DirResolver); ok {
			p := r.Pattern()
			_, _ = fmt.Fprintf(out, "Expected names like %s in %s (years %d-%d).\n",
				p.FileName(p.MinYear), p.Dir, p.MinYear, p.MaxYear)
			if c := r.Candidates(); len(c) > 0 {
				_, _ = fmt.Fprintln(out, "Other files with that extension:")
				for _, name := range c {
					_, _ = fmt.Fprintf(out, "  %s\n", name)
				}
			}
		}
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "YEAR\tFILE")
	for _, y := range years {
		path, _ := catalog.Resolve(y)
		_, _ = fmt.Fprintf(w, "%d\t%s\n", y, path)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d years available (%d-%d)\n", len(years), years[0], years[len(years)-1])
}
