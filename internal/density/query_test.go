package density

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

func TestQuerier_Defaults(t *testing.T) {
	q := NewQuerier(nil)
	assert.Equal(t, []int{1, 3, 5}, q.Radii())
	assert.NotNil(t, q.opener)
	assert.Equal(t, SurroundingRadius, q.surroundingRadius)

	q = NewQuerier(nil, WithRadii([]int{2, 4}), WithSurroundingRadius(1), WithRadii(nil))
	assert.Equal(t, []int{2, 4}, q.Radii())
	assert.Equal(t, 1, q.surroundingRadius)
}

func TestQuerier_Query(t *testing.T) {
	op := newFakeOpener()
	op.add("chn_ppp_2020.tif", func() *raster.Grid { return uniformGrid(t, 21, 50) })
	q := NewQuerier(op)

	ref := uniformGrid(t, 21, 50)
	coord := cellCenter(ref, 10, 10)

	res, err := q.Query(context.Background(), "chn_ppp_2020.tif", coord)
	require.NoError(t, err)

	assert.Equal(t, coord, res.Coordinate)
	assert.Equal(t, PixelIndex{Row: 10, Col: 10}, res.Pixel)
	assert.Equal(t, 50.0, res.Point.Density)
	assert.False(t, res.Point.IsNoData)
	assert.InEpsilon(t, PixelAreaKM2(ref.Transform()), res.Point.PixelAreaKM2, 1e-12)
	assert.InEpsilon(t, 50*res.Point.PixelAreaKM2, res.Point.PixelPopulation, 1e-12)

	assert.Equal(t, 2, res.SurroundingRadius)
	assert.Equal(t, 25, res.Surrounding.Count)
	assert.Equal(t, 50.0, res.Surrounding.Median)
	assert.Zero(t, res.Surrounding.Std)

	require.Len(t, res.Radii, 3)
	assert.Equal(t, 9, res.Radii[0].Stats.Count)
	assert.Equal(t, 49, res.Radii[1].Stats.Count)
	assert.Equal(t, 121, res.Radii[2].Stats.Count)

	assert.Equal(t, "uniform", res.Source.Path)
	assert.Equal(t, 21, res.Source.Width)
	assert.InDelta(t, worldPopCell, res.Source.ResolutionY, 1e-15)

	assert.True(t, op.allClosed(), "dataset must be closed after a successful query")
}

func TestQuerier_NoDataPoint(t *testing.T) {
	op := newFakeOpener()
	op.add("f", func() *raster.Grid {
		g := uniformGrid(t, 5, 10)
		g.Set(2, 2, -1)
		return g
	})

	res, err := NewQuerier(op).Query(context.Background(), "f", cellCenter(uniformGrid(t, 5, 0), 2, 2))
	require.NoError(t, err)
	assert.True(t, res.Point.IsNoData)
	assert.Zero(t, res.Point.Density)
	assert.Zero(t, res.Point.PixelPopulation)
	assert.Equal(t, 24, res.Surrounding.Count)
}

func TestQuerier_NaNNoDataEncodes(t *testing.T) {
	op := newFakeOpener()
	op.add("f", func() *raster.Grid {
		gt := raster.GeoTransform{OriginX: 100, PixelWidth: worldPopCell, OriginY: 40, PixelHeight: -worldPopCell}
		g, err := raster.NewGrid("nan", 5, 5, gt, raster.NoData{Value: math.NaN(), Valid: true}, raster.Fill(5, 5, 10))
		require.NoError(t, err)
		g.Set(2, 2, math.NaN())
		g.Set(0, 0, math.NaN())
		return g
	})

	res, err := NewQuerier(op).Query(context.Background(), "f", cellCenter(uniformGrid(t, 5, 0), 2, 2))
	require.NoError(t, err)
	assert.True(t, res.Point.IsNoData)
	assert.Zero(t, res.Point.Density)
	assert.Equal(t, 23, res.Surrounding.Count)
	assert.Equal(t, 10.0, res.Surrounding.Mean)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nodata":{"value":"NaN","valid":true}`)
}

func TestQuerier_AllNoDataWindow(t *testing.T) {
	op := newFakeOpener()
	op.add("f", func() *raster.Grid { return uniformGrid(t, 7, -1) })

	res, err := NewQuerier(op).Query(context.Background(), "f", cellCenter(uniformGrid(t, 7, 0), 3, 3))
	require.NoError(t, err)
	assert.True(t, res.Surrounding.Empty())
	for _, r := range res.Radii {
		assert.Zero(t, r.Stats.Count)
		assert.Zero(t, r.AreaKM2)
	}
}

func TestQuerier_OutOfBoundsClosesDataset(t *testing.T) {
	op := newFakeOpener()
	op.add("f", func() *raster.Grid { return uniformGrid(t, 5, 1) })

	_, err := NewQuerier(op).Query(context.Background(), "f", Coordinate{Longitude: 0, Latitude: 0})
	require.Error(t, err)
	assert.Equal(t, KindOutOfBounds, KindOf(err))
	assert.True(t, op.allClosed())
}

func TestQuerier_OpenFailure(t *testing.T) {
	_, err := NewQuerier(newFakeOpener()).Query(context.Background(), "missing.tif", Coordinate{})
	require.Error(t, err)

	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindReadFailure, qe.Kind)
	assert.Equal(t, "missing.tif", qe.Path)
	assert.Contains(t, qe.Error(), "no such file")
}

func TestQuerier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQuerier(newFakeOpener()).Query(ctx, "f", Coordinate{})
	require.Error(t, err)
	assert.Equal(t, KindReadFailure, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuerier_QueryDatasetReadFailure(t *testing.T) {
	ds := failingDataset{Grid: seqGrid(t, 3, 3, raster.NoData{})}
	_, err := NewQuerier(nil).QueryDataset(ds, Coordinate{Longitude: 1.5, Latitude: 1.5})
	require.Error(t, err)
	assert.Equal(t, KindReadFailure, KindOf(err))
}

func TestQueryError_JSON(t *testing.T) {
	qe := &QueryError{Kind: KindFileMissing, Detail: "no data file for year 2015", Year: 2015}
	data, err := json.Marshal(qe)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "file_missing", got["kind"])
	assert.Equal(t, "file_missing: no data file for year 2015", got["message"])
	assert.EqualValues(t, 2015, got["year"])
}
