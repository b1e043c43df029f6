package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/fetcher"
	"github.com/sells-group/popdensity-cli/internal/store"
)

func sampleResult(d float64) *density.QueryResult {
	return &density.QueryResult{
		Coordinate:        testCoord,
		Pixel:             density.PixelIndex{Row: 5, Col: 5},
		Point:             density.PointValue{Density: d, PixelPopulation: d * 1.24, PixelAreaKM2: 1.24},
		SurroundingRadius: 2,
		Surrounding:       density.Statistics{Count: 25, Mean: d, Median: d, Min: d, Max: d, Sum: d * 25},
		Radii: []density.RadiusReport{
			{Radius: 1, Stats: density.Statistics{Count: 9, Mean: d, Max: d}, AreaKM2: 11.16, TotalPopulation: d * 9},
		},
	}
}

func TestFormatBatch_MultiYear(t *testing.T) {
	cagr := 1.9246
	b := &density.BatchResult{
		Coordinate:     testCoord,
		RequestedYears: []int{2010, 2015, 2020},
		Outcomes: []density.Outcome{
			{Year: 2010, Result: sampleResult(1000)},
			{Year: 2015, Err: &density.QueryError{Kind: density.KindFileMissing, Detail: "no data file for year 2015"}},
			{Year: 2020, Result: sampleResult(1210)},
		},
		Succeeded: []int{2010, 2020},
		Failed:    []int{2015},
		Trend: &density.TrendSummary{
			FirstYear: 2010, FirstValue: 1000, LastYear: 2020, LastValue: 1210,
			YearsSpan: 10, AbsoluteChange: 210, RelativeChangePct: 21, CAGRPct: &cagr,
		},
	}

	var buf bytes.Buffer
	formatBatch(&buf, b)
	out := buf.String()

	assert.Contains(t, out, "Location: lat 39.895000, lon 116.415000")
	assert.Contains(t, out, "== 2010 ==")
	assert.Contains(t, out, "row 5, col 5")
	assert.Contains(t, out, "1,000.00 people/km²")
	assert.Contains(t, out, "1,210.00 people/km²")
	assert.Contains(t, out, "error: file_missing: no data file for year 2015")
	assert.Contains(t, out, "RADIUS")
	assert.Contains(t, out, "9,000")
	assert.Contains(t, out, "3 requested, 2 succeeded, 1 failed (66.7% success)")
	assert.Contains(t, out, "Failed years: [2015]")
	assert.Contains(t, out, "Trend 2010-2020")
	assert.Contains(t, out, "+21.00%")
	assert.Contains(t, out, "CAGR +1.925%")
	assert.NotContains(t, out, "2,010", "years are not grouped")
}

func TestFormatBatch_SingleYearNoData(t *testing.T) {
	r := sampleResult(0)
	r.Point.IsNoData = true
	r.Surrounding = density.Statistics{}
	b := &density.BatchResult{
		Coordinate:     testCoord,
		RequestedYears: []int{2020},
		Outcomes:       []density.Outcome{{Year: 2020, Result: r}},
		Succeeded:      []int{2020},
		Failed:         []int{},
	}

	var buf bytes.Buffer
	formatBatch(&buf, b)
	out := buf.String()

	assert.Contains(t, out, "0.00 people/km² (nodata)")
	assert.Contains(t, out, "surrounding r=2:   no valid cells")
	assert.NotContains(t, out, "requested")
	assert.NotContains(t, out, "Trend")
}

func TestFormatPointsTable(t *testing.T) {
	rows := []pointRow{
		{
			Point: fetcher.Point{ID: "a", Name: "Tiananmen", Coordinate: testCoord},
			Batch: &density.BatchResult{Outcomes: []density.Outcome{{Year: 2020, Result: sampleResult(12345.678)}}},
		},
		{
			Point: fetcher.Point{ID: "b", Coordinate: density.Coordinate{}},
			Batch: &density.BatchResult{Outcomes: []density.Outcome{{Year: 2020, Err: &density.QueryError{Kind: density.KindOutOfBounds}}}},
		},
	}

	var buf bytes.Buffer
	formatPointsTable(&buf, rows)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "PIXEL_POP")
	assert.Contains(t, out, "Tiananmen")
	assert.Contains(t, out, "12,345.68")
	assert.Contains(t, out, "coordinate_out_of_bounds")
	assert.Contains(t, out, "2020")
}

func TestFormatFetchResults(t *testing.T) {
	results := []fetcher.Result{
		{Target: fetcher.Target{Year: 2000, Path: "/data/chn_ppp_2000.tif"}, Bytes: 3 << 20, Duration: 1500 * time.Millisecond},
		{Target: fetcher.Target{Year: 2005, Path: "/data/chn_ppp_2005.tif"}, Bytes: 512, Skipped: true},
		{Target: fetcher.Target{Year: 2010, Path: "/data/chn_ppp_2010.tif"}, Err: errors.New("550 not found")},
	}

	var buf bytes.Buffer
	formatFetchResults(&buf, results)
	out := buf.String()

	assert.Contains(t, out, "downloaded")
	assert.Contains(t, out, "3.0 MB")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "exists")
	assert.Contains(t, out, "512 B")
	assert.Contains(t, out, "failed: 550 not found")
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.RunRecord{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			Kind:           store.RunKindMulti,
			Latitude:       39.9042,
			Longitude:      116.4074,
			RequestedYears: []int{2000, 2005, 2010, 2015, 2020},
			Succeeded:      4,
			Failed:         1,
			CreatedAt:      now,
		},
		{
			ID:             "def",
			Kind:           store.RunKindSingle,
			RequestedYears: []int{2020},
			Succeeded:      1,
			CreatedAt:      now,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "multi")
	assert.Contains(t, out, "2000-2020 (5)")
	assert.Contains(t, out, "single")
	assert.Contains(t, out, "2025-06-15 10:30")
}

func TestYearSpan(t *testing.T) {
	tests := []struct {
		years []int
		want  string
	}{
		{nil, "-"},
		{[]int{2020}, "2020"},
		{[]int{2010, 2020}, "2010,2020"},
		{[]int{2000, 2010, 2020}, "2000-2020 (3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, yearSpan(tt.years))
	}
}

func TestNum(t *testing.T) {
	assert.Equal(t, "1,234,567.89", num(1234567.891, 2))
	assert.Equal(t, "12", num(12.4, 0))
	assert.Equal(t, "0.5", num(0.5, 1))
}
