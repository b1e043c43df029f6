package raster

import (
	"github.com/rotisserie/eris"
)

// Grid is an in-memory Dataset. It backs the ASCII grid driver and is handy
// for building fixtures.
type Grid struct {
	path      string
	width     int
	height    int
	transform GeoTransform
	nodata    NoData
	values    []float64
	closed    bool
}

// NewGrid creates a Grid from row-major values. len(values) must equal
// width*height.
func NewGrid(path string, width, height int, gt GeoTransform, nodata NoData, values []float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("raster: invalid grid size %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, eris.Errorf("raster: grid has %d values, want %d", len(values), width*height)
	}
	if gt.PixelWidth == 0 || gt.PixelHeight == 0 {
		return nil, eris.New("raster: pixel size must be non-zero")
	}
	return &Grid{
		path:      path,
		width:     width,
		height:    height,
		transform: gt,
		nodata:    nodata,
		values:    values,
	}, nil
}

// Fill returns a width×height slice where every cell holds v.
func Fill(width, height int, v float64) []float64 {
	out := make([]float64, width*height)
	for i := range out {
		out[i] = v
	}
	return out
}

func (g *Grid) Path() string                { return g.path }
func (g *Grid) Size() (int, int)            { return g.width, g.height }
func (g *Grid) Transform() GeoTransform     { return g.transform }
func (g *Grid) Bounds() Bounds              { return BoundsOf(g.transform, g.width, g.height) }
func (g *Grid) NoData() NoData              { return g.nodata }
func (g *Grid) At(row, col int) float64     { return g.values[row*g.width+col] }
func (g *Grid) Set(row, col int, v float64) { g.values[row*g.width+col] = v }

// ReadWindow copies the cells inside w.
func (g *Grid) ReadWindow(w Window) ([]float64, error) {
	if g.closed {
		return nil, eris.New("raster: read on closed grid")
	}
	if w.RowStart < 0 || w.ColStart < 0 || w.RowEnd > g.height || w.ColEnd > g.width || w.Cells() <= 0 {
		return nil, eris.Errorf("raster: window %+v outside %dx%d grid", w, g.width, g.height)
	}
	out := make([]float64, 0, w.Cells())
	for r := w.RowStart; r < w.RowEnd; r++ {
		out = append(out, g.values[r*g.width+w.ColStart:r*g.width+w.ColEnd]...)
	}
	return out, nil
}

// Close marks the grid as released. Subsequent reads fail.
func (g *Grid) Close() error {
	if g.closed {
		return eris.New("raster: close called more than once")
	}
	g.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (g *Grid) Closed() bool { return g.closed }
