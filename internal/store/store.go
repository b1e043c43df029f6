// Package store persists query history so earlier runs can be listed and
// replayed without touching the rasters again.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = eris.New("store: run not found")

// RunKind distinguishes single-year queries from multi-year batches.
type RunKind string

const (
	RunKindSingle RunKind = "single"
	RunKindMulti  RunKind = "multi"
)

// YearRow is the per-year summary of a run.
type YearRow struct {
	Year            int     `json:"year"`
	OK              bool    `json:"ok"`
	Density         float64 `json:"density_per_km2"`
	PixelPopulation float64 `json:"total_population_in_pixel"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	ErrorDetail     string  `json:"error_detail,omitempty"`
}

// RunRecord is one saved query. Result holds the full report as JSON and is
// only populated by GetRun.
type RunRecord struct {
	ID             string          `json:"id"`
	Kind           RunKind         `json:"kind"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	RequestedYears []int           `json:"requested_years"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	Years          []YearRow       `json:"years,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind      RunKind             `json:"kind,omitempty"`
	Year      int                 `json:"year,omitempty"`
	Near      *density.Coordinate `json:"near,omitempty"`
	Tolerance float64             `json:"tolerance,omitempty"` // degrees; defaults to 1e-6
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

func (f RunFilter) tolerance() float64 {
	if f.Tolerance > 0 {
		return f.Tolerance
	}
	return 1e-6
}

func (f RunFilter) limit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return 100
}

// Store defines the persistence interface for query history.
type Store interface {
	SaveRun(ctx context.Context, rec *RunRecord) (string, error)
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// NewRunRecord summarises a batch for storage. A batch of one requested
// year is recorded as a single query.
func NewRunRecord(b *density.BatchResult) (*RunRecord, error) {
	result, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal result")
	}

	rec := &RunRecord{
		Kind:           RunKindMulti,
		Latitude:       b.Coordinate.Latitude,
		Longitude:      b.Coordinate.Longitude,
		RequestedYears: append([]int{}, b.RequestedYears...),
		Succeeded:      len(b.Succeeded),
		Failed:         len(b.Failed),
		Result:         result,
	}
	if len(b.RequestedYears) == 1 {
		rec.Kind = RunKindSingle
	}
	for _, o := range b.Outcomes {
		row := YearRow{Year: o.Year, OK: o.OK()}
		if o.OK() {
			row.Density = o.Result.Point.Density
			row.PixelPopulation = o.Result.Point.PixelPopulation
		} else if o.Err != nil {
			row.ErrorKind = string(o.Err.Kind)
			row.ErrorDetail = o.Err.Detail
		}
		rec.Years = append(rec.Years, row)
	}
	return rec, nil
}
