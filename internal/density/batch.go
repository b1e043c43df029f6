package density

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver maps a year to the raster file holding that year's data. A year
// with no file is reported with ok=false.
type Resolver interface {
	Resolve(year int) (path string, ok bool)
}

// MapResolver is a Resolver backed by a fixed year→path map.
type MapResolver map[int]string

// Resolve implements Resolver.
func (m MapResolver) Resolve(year int) (string, bool) {
	p, ok := m[year]
	return p, ok
}

// Outcome is the per-year result of a batch: exactly one of Result and Err
// is set.
type Outcome struct {
	Year   int          `json:"year"`
	Result *QueryResult `json:"result,omitempty"`
	Err    *QueryError  `json:"error,omitempty"`
}

// OK reports whether the year succeeded.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// BatchResult collects the outcome of every requested year.
type BatchResult struct {
	Coordinate     Coordinate    `json:"coordinate"`
	RequestedYears []int         `json:"requested_years"`
	Outcomes       []Outcome     `json:"outcomes"`
	Succeeded      []int         `json:"successful_years"`
	Failed         []int         `json:"failed_years"`
	Trend          *TrendSummary `json:"trend,omitempty"`
}

// SuccessRate returns the percentage of requested years that succeeded.
func (b *BatchResult) SuccessRate() float64 {
	if len(b.RequestedYears) == 0 {
		return 0
	}
	return float64(len(b.Succeeded)) / float64(len(b.RequestedYears)) * 100
}

// Outcome returns the outcome for year, if it was requested.
func (b *BatchResult) Outcome(year int) (Outcome, bool) {
	for _, o := range b.Outcomes {
		if o.Year == year {
			return o, true
		}
	}
	return Outcome{}, false
}

// Series returns the point density of every successful year, ascending.
func (b *BatchResult) Series() []YearValue {
	var out []YearValue
	for _, o := range b.Outcomes {
		if o.OK() {
			out = append(out, YearValue{Year: o.Year, Value: o.Result.Point.Density})
		}
	}
	return out
}

// Orchestrator repeats one coordinate query across yearly rasters.
type Orchestrator struct {
	querier     *Querier
	resolver    Resolver
	concurrency int
}

// NewOrchestrator creates an Orchestrator. Concurrency below 1 runs the
// years one at a time.
func NewOrchestrator(q *Querier, resolver Resolver, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{querier: q, resolver: resolver, concurrency: concurrency}
}

// Run queries coord for every requested year. A failing year never aborts
// the others; its error is recorded in the year's Outcome. Each year opens
// and closes its own dataset, so years may run concurrently.
func (o *Orchestrator) Run(ctx context.Context, coord Coordinate, years []int) *BatchResult {
	years = normalizeYears(years)
	res := &BatchResult{
		Coordinate:     coord,
		RequestedYears: years,
		Outcomes:       make([]Outcome, len(years)),
		Succeeded:      []int{},
		Failed:         []int{},
	}

	// Goroutines never return an error, so the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, year := range years {
		g.Go(func() error {
			// A driver panic would take down every other year with it.
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("density: raster driver panicked", zap.Int("year", year), zap.Any("panic", r))
					res.Outcomes[i] = Outcome{Year: year, Err: &QueryError{
						Kind:       KindReadFailure,
						Detail:     fmt.Sprintf("raster driver panicked: %v", r),
						Coordinate: coord,
						Year:       year,
					}}
				}
			}()
			res.Outcomes[i] = o.runYear(ctx, coord, year)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range res.Outcomes {
		if out.OK() {
			res.Succeeded = append(res.Succeeded, out.Year)
		} else {
			res.Failed = append(res.Failed, out.Year)
		}
	}
	res.Trend = ComputeTrend(res.Series())

	zap.L().Info("density: batch complete",
		zap.Float64("lon", coord.Longitude),
		zap.Float64("lat", coord.Latitude),
		zap.Int("requested", len(years)),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

func (o *Orchestrator) runYear(ctx context.Context, coord Coordinate, year int) Outcome {
	log := zap.L().With(zap.Int("year", year))

	path, ok := o.resolver.Resolve(year)
	if !ok {
		log.Warn("density: no file for year")
		return Outcome{Year: year, Err: &QueryError{
			Kind:       KindFileMissing,
			Detail:     fmt.Sprintf("no data file for year %d", year),
			Coordinate: coord,
			Year:       year,
		}}
	}

	result, err := o.querier.Query(ctx, path, coord)
	if err != nil {
		qe := asQueryError(err, coord, path)
		qe.Year = year
		log.Warn("density: year failed", zap.String("path", path), zap.String("kind", string(qe.Kind)), zap.Error(err))
		return Outcome{Year: year, Err: qe}
	}
	log.Debug("density: year complete", zap.String("path", path), zap.Float64("density", result.Point.Density))
	return Outcome{Year: year, Result: result}
}

// normalizeYears sorts ascending and drops duplicates.
func normalizeYears(years []int) []int {
	out := append([]int(nil), years...)
	sort.Ints(out)
	j := 0
	for i, y := range out {
		if i > 0 && y == out[j-1] {
			continue
		}
		out[j] = y
		j++
	}
	return out[:j]
}
