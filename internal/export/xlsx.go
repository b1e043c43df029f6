package export

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/popdensity-cli/internal/density"
)

var baseColumns = []string{
	"latitude", "longitude", "year", "status", "error",
	"density_per_km2", "total_population_in_pixel", "pixel_area_km2", "point_is_nodata",
	"surrounding_count", "surrounding_mean", "surrounding_median", "surrounding_min", "surrounding_max", "surrounding_std",
}

var trendColumns = []string{
	"latitude", "longitude", "first_year", "first_value", "last_year", "last_value",
	"years_span", "absolute_change", "relative_change_pct", "cagr_pct",
}

// WriteXLSX writes a "results" sheet with one row per (coordinate, year) and
// a "trends" sheet with one row per coordinate that has a trend.
func WriteXLSX(w io.Writer, batches ...*density.BatchResult) error {
	f := xlsx.NewFile()

	results, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "export: add results sheet")
	}
	radii := radiusSet(batches)
	header := append([]string{}, baseColumns...)
	for _, r := range radii {
		for _, field := range []string{"mean", "total", "max", "pixel_count", "area_km2"} {
			header = append(header, fmt.Sprintf("radius_%d_%s", r, field))
		}
	}
	addStrings(results.AddRow(), header)

	for _, b := range batches {
		for _, o := range b.Outcomes {
			writeOutcomeRow(results.AddRow(), b.Coordinate, o, radii)
		}
	}

	trends, err := f.AddSheet("trends")
	if err != nil {
		return eris.Wrap(err, "export: add trends sheet")
	}
	addStrings(trends.AddRow(), trendColumns)
	for _, b := range batches {
		if b.Trend == nil {
			continue
		}
		row := trends.AddRow()
		t := b.Trend
		row.AddCell().SetFloat(b.Coordinate.Latitude)
		row.AddCell().SetFloat(b.Coordinate.Longitude)
		row.AddCell().SetInt(t.FirstYear)
		row.AddCell().SetFloat(t.FirstValue)
		row.AddCell().SetInt(t.LastYear)
		row.AddCell().SetFloat(t.LastValue)
		row.AddCell().SetInt(t.YearsSpan)
		row.AddCell().SetFloat(t.AbsoluteChange)
		row.AddCell().SetFloat(t.RelativeChangePct)
		if t.CAGRPct != nil {
			row.AddCell().SetFloat(*t.CAGRPct)
		} else {
			row.AddCell()
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func writeOutcomeRow(row *xlsx.Row, coord density.Coordinate, o density.Outcome, radii []int) {
	row.AddCell().SetFloat(coord.Latitude)
	row.AddCell().SetFloat(coord.Longitude)
	row.AddCell().SetInt(o.Year)

	if !o.OK() {
		row.AddCell().SetString("failed")
		if o.Err != nil {
			row.AddCell().SetString(o.Err.Error())
		}
		return
	}
	row.AddCell().SetString("ok")
	row.AddCell()

	r := o.Result
	row.AddCell().SetFloat(r.Point.Density)
	row.AddCell().SetFloat(r.Point.PixelPopulation)
	row.AddCell().SetFloat(r.Point.PixelAreaKM2)
	row.AddCell().SetBool(r.Point.IsNoData)
	row.AddCell().SetInt(r.Surrounding.Count)
	for _, v := range []float64{r.Surrounding.Mean, r.Surrounding.Median, r.Surrounding.Min, r.Surrounding.Max, r.Surrounding.Std} {
		row.AddCell().SetFloat(v)
	}

	byRadius := make(map[int]density.RadiusReport, len(r.Radii))
	for _, rr := range r.Radii {
		byRadius[rr.Radius] = rr
	}
	for _, radius := range radii {
		rr, ok := byRadius[radius]
		if !ok {
			for range 5 {
				row.AddCell()
			}
			continue
		}
		row.AddCell().SetFloat(rr.Stats.Mean)
		row.AddCell().SetFloat(rr.TotalPopulation)
		row.AddCell().SetFloat(rr.Stats.Max)
		row.AddCell().SetInt(rr.Stats.Count)
		row.AddCell().SetFloat(rr.AreaKM2)
	}
}

// radiusSet lists every radius reported in batches, in first-seen order.
func radiusSet(batches []*density.BatchResult) []int {
	seen := map[int]bool{}
	var out []int
	for _, b := range batches {
		for _, o := range b.Outcomes {
			if !o.OK() {
				continue
			}
			for _, rr := range o.Result.Radii {
				if !seen[rr.Radius] {
					seen[rr.Radius] = true
					out = append(out, rr.Radius)
				}
			}
		}
	}
	return out
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
