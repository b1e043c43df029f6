package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/fetcher"
	"github.com/sells-group/popdensity-cli/internal/store"
)

// printer groups thousands in population figures. Years and pixel indices
// go through fmt so they print ungrouped.
var printer = message.NewPrinter(language.English)

// num formats a quantity with prec decimals and thousands separators.
func num(v float64, prec int) string {
	return printer.Sprintf(fmt.Sprintf("%%.%df", prec), v)
}

// formatBatch writes a human-readable report of a batch to out.
func formatBatch(out io.Writer, b *density.BatchResult) {
	_, _ = fmt.Fprintf(out, "Location: lat %.6f, lon %.6f\n", b.Coordinate.Latitude, b.Coordinate.Longitude)

	for _, o := range b.Outcomes {
		_, _ = fmt.Fprintf(out, "\n== %d ==\n", o.Year)
		if !o.OK() {
			_, _ = fmt.Fprintf(out, "  error: %s\n", o.Err.Error())
			continue
		}
		r := o.Result
		nodata := ""
		if r.Point.IsNoData {
			nodata = " (nodata)"
		}
		_, _ = fmt.Fprintf(out, "  pixel:            row %d, col %d\n", r.Pixel.Row, r.Pixel.Col)
		_, _ = fmt.Fprintf(out, "  density:          %s people/km²%s\n", num(r.Point.Density, 2), nodata)
		_, _ = fmt.Fprintf(out, "  pixel population: %s (pixel area %.4f km²)\n", num(r.Point.PixelPopulation, 2), r.Point.PixelAreaKM2)

		s := r.Surrounding
		if s.Empty() {
			_, _ = fmt.Fprintf(out, "  surrounding r=%d:   no valid cells\n", r.SurroundingRadius)
		} else {
			_, _ = fmt.Fprintf(out, "  surrounding r=%d:   mean %s, median %s, min %s, max %s, std %s (%d cells)\n",
				r.SurroundingRadius, num(s.Mean, 2), num(s.Median, 2), num(s.Min, 2), num(s.Max, 2), num(s.Std, 2), s.Count)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(w, "  RADIUS\tCELLS\tMEAN\tMAX\tAREA_KM2\tTOTAL\t")
		for _, rr := range r.Radii {
			_, _ = fmt.Fprintf(w, "  %d\t%d\t%s\t%s\t%s\t%s\t\n",
				rr.Radius, rr.Stats.Count, num(rr.Stats.Mean, 2), num(rr.Stats.Max, 2), num(rr.AreaKM2, 2), num(rr.TotalPopulation, 0))
		}
		_ = w.Flush()
	}

	if len(b.RequestedYears) > 1 {
		_, _ = fmt.Fprintf(out, "\nYears: %d requested, %d succeeded, %d failed (%.1f%% success)\n",
			len(b.RequestedYears), len(b.Succeeded), len(b.Failed), b.SuccessRate())
		if len(b.Failed) > 0 {
			_, _ = fmt.Fprintf(out, "Failed years: %v\n", b.Failed)
		}
	}
	if t := b.Trend; t != nil {
		_, _ = fmt.Fprintf(out, "Trend %d-%d: %s -> %s people/km² (%s, %+.2f%%",
			t.FirstYear, t.LastYear, num(t.FirstValue, 2), num(t.LastValue, 2),
			printer.Sprintf("%+.2f", t.AbsoluteChange), t.RelativeChangePct)
		if t.CAGRPct != nil {
			_, _ = fmt.Fprintf(out, ", CAGR %+.3f%%", *t.CAGRPct)
		}
		_, _ = fmt.Fprintln(out, ")")
	}
}

// pointRow is one point of a `points` run.
type pointRow struct {
	Point fetcher.Point
	Batch *density.BatchResult
}

// formatPointsTable writes one line per point and year.
func formatPointsTable(out io.Writer, rows []pointRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tLAT\tLON\tYEAR\tDENSITY\tPIXEL_POP\tSTATUS")
	for _, r := range rows {
		for _, o := range r.Batch.Outcomes {
			status := "ok"
			densityCol, popCol := "-", "-"
			if o.OK() {
				densityCol = num(o.Result.Point.Density, 2)
				popCol = num(o.Result.Point.PixelPopulation, 2)
				if o.Result.Point.IsNoData {
					status = "nodata"
				}
			} else {
				status = string(o.Err.Kind)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.6f\t%.6f\t%d\t%s\t%s\t%s\n",
				r.Point.ID, r.Point.Name, r.Point.Coordinate.Latitude, r.Point.Coordinate.Longitude,
				o.Year, densityCol, popCol, status)
		}
	}
	_ = w.Flush()
}

// formatFetchResults writes one line per download.
func formatFetchResults(out io.Writer, results []fetcher.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "YEAR\tSTATUS\tSIZE\tDURATION\tPATH")
	for _, r := range results {
		status := "downloaded"
		switch {
		case r.Err != nil:
			status = "failed: " + r.Err.Error()
		case r.Skipped:
			status = "exists"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.Year, status, formatBytes(r.Bytes), r.Duration.Round(time.Millisecond), r.Path)
	}
	_ = w.Flush()
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return num(float64(n)/mb, 1) + " MB"
	}
	return num(float64(n), 0) + " B"
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []store.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tLAT\tLON\tYEARS\tOK\tFAILED\tCREATED")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.6f\t%.6f\t%s\t%d\t%d\t%s\n",
			id, r.Kind, r.Latitude, r.Longitude, yearSpan(r.RequestedYears),
			r.Succeeded, r.Failed, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// yearSpan abbreviates a year list: "2020", "2010,2015" or "2000-2020 (21)".
func yearSpan(years []int) string {
	switch len(years) {
	case 0:
		return "-"
	case 1:
		return fmt.Sprint(years[0])
	case 2:
		return fmt.Sprintf("%d,%d", years[0], years[1])
	}
	return fmt.Sprintf("%d-%d (%d)", years[0], years[len(years)-1], len(years))
}
