package density

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// PointValue is the cell under the queried coordinate.
type PointValue struct {
	// Density is the cell value, or 0 when the cell holds nodata.
	Density float64 `json:"density_per_km2"`

	// PixelPopulation is Density × PixelAreaKM2.
	PixelPopulation float64 `json:"total_population_in_pixel"`

	PixelAreaKM2 float64 `json:"pixel_area_km2"`
	IsNoData     bool    `json:"point_is_nodata"`
}

// SourceInfo describes the dataset a result came from.
type SourceInfo struct {
	Path        string              `json:"path"`
	Width       int                 `json:"width"`
	Height      int                 `json:"height"`
	Transform   raster.GeoTransform `json:"transform"`
	Bounds      raster.Bounds       `json:"bounds"`
	NoData      raster.NoData       `json:"nodata"`
	ResolutionX float64             `json:"resolution_x"`
	ResolutionY float64             `json:"resolution_y"`
	FileSizeMB  float64             `json:"file_size_mb"`
}

// QueryResult is the success half of an Outcome.
type QueryResult struct {
	Coordinate        Coordinate     `json:"coordinate"`
	Pixel             PixelIndex     `json:"pixel"`
	Point             PointValue     `json:"point"`
	SurroundingRadius int            `json:"surrounding_radius"`
	Surrounding       Statistics     `json:"surrounding"`
	Radii             []RadiusReport `json:"radii"`
	Source            SourceInfo     `json:"source"`
}

// Querier runs single-coordinate queries against raster files.
type Querier struct {
	opener            raster.Opener
	radii             []int
	surroundingRadius int
}

// Option configures a Querier.
type Option func(*Querier)

// WithRadii overrides the analysis radii.
func WithRadii(radii []int) Option {
	return func(q *Querier) {
		if len(radii) > 0 {
			q.radii = append([]int(nil), radii...)
		}
	}
}

// WithSurroundingRadius overrides the radius of the surrounding block.
func WithSurroundingRadius(r int) Option {
	return func(q *Querier) {
		if r >= 0 {
			q.surroundingRadius = r
		}
	}
}

// NewQuerier creates a Querier. A nil opener uses raster.DefaultOpener.
func NewQuerier(opener raster.Opener, opts ...Option) *Querier {
	if opener == nil {
		opener = raster.DefaultOpener
	}
	q := &Querier{
		opener:            opener,
		radii:             append([]int(nil), DefaultRadii...),
		surroundingRadius: SurroundingRadius,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Radii returns a copy of the configured analysis radii.
func (q *Querier) Radii() []int {
	return append([]int(nil), q.radii...)
}

// Query opens path, answers the query and closes the dataset on every exit
// path. A non-nil error is always a *QueryError.
func (q *Querier) Query(ctx context.Context, path string, coord Coordinate) (*QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &QueryError{Kind: KindReadFailure, Detail: "query cancelled", Coordinate: coord, Path: path, Err: err}
	}

	ds, err := q.opener.Open(path)
	if err != nil {
		return nil, &QueryError{
			Kind:       KindReadFailure,
			Detail:     "open dataset",
			Coordinate: coord,
			Path:       path,
			Err:        err,
		}
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			zap.L().Warn("density: close dataset", zap.String("path", path), zap.Error(cerr))
		}
	}()

	return q.QueryDataset(ds, coord)
}

// QueryDataset answers the query against an already open dataset. The
// caller keeps ownership of ds.
func (q *Querier) QueryDataset(ds raster.Dataset, coord Coordinate) (*QueryResult, error) {
	px, err := Locate(ds, coord)
	if err != nil {
		return nil, err
	}

	gt := ds.Transform()
	nodata := ds.NoData()
	pixelArea := PixelAreaKM2(gt)

	_, center, err := Extract(ds, px, 0)
	if err != nil {
		return nil, asQueryError(err, coord, ds.Path())
	}
	point := PointValue{Density: center[0], PixelAreaKM2: pixelArea}
	if nodata.Matches(point.Density) {
		point.Density = 0
		point.IsNoData = true
	}
	point.PixelPopulation = point.Density * pixelArea

	_, window, err := Extract(ds, px, q.surroundingRadius)
	if err != nil {
		return nil, asQueryError(err, coord, ds.Path())
	}

	radii, err := AnalyzeRadii(ds, px, q.radii)
	if err != nil {
		return nil, asQueryError(err, coord, ds.Path())
	}

	return &QueryResult{
		Coordinate:        coord,
		Pixel:             px,
		Point:             point,
		SurroundingRadius: q.surroundingRadius,
		Surrounding:       Summarize(window, nodata),
		Radii:             radii,
		Source:            describe(ds),
	}, nil
}

func describe(ds raster.Dataset) SourceInfo {
	w, h := ds.Size()
	gt := ds.Transform()
	rx, ry := gt.Resolution()
	info := SourceInfo{
		Path:        ds.Path(),
		Width:       w,
		Height:      h,
		Transform:   gt,
		Bounds:      ds.Bounds(),
		NoData:      ds.NoData(),
		ResolutionX: rx,
		ResolutionY: ry,
	}
	if fi, err := os.Stat(ds.Path()); err == nil {
		info.FileSizeMB = float64(fi.Size()) / (1024 * 1024)
	}
	return info
}
