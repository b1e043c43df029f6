package density

import (
	"math"
	"sort"
)

// YearValue is one point of a yearly series.
type YearValue struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// TrendSummary compares the first and last years of a series.
type TrendSummary struct {
	FirstYear      int     `json:"first_year"`
	FirstValue     float64 `json:"first_value"`
	LastYear       int     `json:"last_year"`
	LastValue      float64 `json:"last_value"`
	YearsSpan      int     `json:"years_span"`
	AbsoluteChange float64 `json:"absolute_change"`

	// RelativeChangePct is 0 when FirstValue is not positive.
	RelativeChangePct float64 `json:"relative_change_pct"`

	// CAGRPct is nil when the span is zero or FirstValue is not positive.
	CAGRPct *float64 `json:"cagr_pct,omitempty"`
}

// ComputeTrend summarises the change between the chronologically first and
// last points. It returns nil for fewer than two points.
func ComputeTrend(points []YearValue) *TrendSummary {
	if len(points) < 2 {
		return nil
	}
	sorted := append([]YearValue(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	first, last := sorted[0], sorted[len(sorted)-1]
	t := &TrendSummary{
		FirstYear:      first.Year,
		FirstValue:     first.Value,
		LastYear:       last.Year,
		LastValue:      last.Value,
		YearsSpan:      last.Year - first.Year,
		AbsoluteChange: last.Value - first.Value,
	}
	if first.Value > 0 {
		t.RelativeChangePct = t.AbsoluteChange / first.Value * 100
		if t.YearsSpan > 0 {
			cagr := (math.Pow(last.Value/first.Value, 1/float64(t.YearsSpan)) - 1) * 100
			t.CAGRPct = &cagr
		}
	}
	return t
}
