// Package raster opens gridded datasets and exposes the georeferencing and
// single-band pixel access needed by point queries.
package raster

import (
	"encoding/json"
	"math"
)

// GeoTransform holds the affine coefficients that map pixel (col, row) to
// geographic (x, y), in GDAL order:
//
//	x = OriginX + col*PixelWidth + row*RotationX
//	y = OriginY + col*RotationY + row*PixelHeight
//
// PixelHeight is negative for north-up rasters.
type GeoTransform struct {
	OriginX     float64 `json:"origin_x"`
	PixelWidth  float64 `json:"pixel_width"`
	RotationX   float64 `json:"rotation_x"`
	OriginY     float64 `json:"origin_y"`
	RotationY   float64 `json:"rotation_y"`
	PixelHeight float64 `json:"pixel_height"`
}

// FromGDAL builds a GeoTransform from a GDAL-ordered coefficient array.
func FromGDAL(gt [6]float64) GeoTransform {
	return GeoTransform{
		OriginX:     gt[0],
		PixelWidth:  gt[1],
		RotationX:   gt[2],
		OriginY:     gt[3],
		RotationY:   gt[4],
		PixelHeight: gt[5],
	}
}

// Rotated reports whether the transform has non-zero rotation terms.
func (gt GeoTransform) Rotated() bool {
	return gt.RotationX != 0 || gt.RotationY != 0
}

// Resolution returns the absolute pixel size along x and y.
func (gt GeoTransform) Resolution() (x, y float64) {
	return math.Abs(gt.PixelWidth), math.Abs(gt.PixelHeight)
}

// Bounds is a geographic bounding box in the dataset's native CRS.
type Bounds struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return b.Left <= x && x <= b.Right && b.Bottom <= y && y <= b.Top
}

// BoundsOf derives the bounding box of a non-rotated width×height grid.
func BoundsOf(gt GeoTransform, width, height int) Bounds {
	x0, x1 := gt.OriginX, gt.OriginX+float64(width)*gt.PixelWidth
	y0, y1 := gt.OriginY, gt.OriginY+float64(height)*gt.PixelHeight
	return Bounds{
		Left:   math.Min(x0, x1),
		Right:  math.Max(x0, x1),
		Bottom: math.Min(y0, y1),
		Top:    math.Max(y0, y1),
	}
}

// NoData is an optional nodata sentinel. Valid is false when the band has
// no sentinel registered.
type NoData struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Matches reports whether v equals the sentinel. Comparison is exact, except
// that a NaN sentinel matches NaN cells since NaN never equals itself.
func (n NoData) Matches(v float64) bool {
	if !n.Valid {
		return false
	}
	if math.IsNaN(n.Value) {
		return math.IsNaN(v)
	}
	return v == n.Value
}

// MarshalJSON writes a NaN sentinel as the string "NaN".
func (n NoData) MarshalJSON() ([]byte, error) {
	var value any = n.Value
	if math.IsNaN(n.Value) {
		value = "NaN"
	}
	return json.Marshal(struct {
		Value any  `json:"value"`
		Valid bool `json:"valid"`
	}{value, n.Valid})
}

// Window is a half-open block of cells [RowStart, RowEnd) × [ColStart, ColEnd).
type Window struct {
	RowStart int `json:"row_start"`
	RowEnd   int `json:"row_end"`
	ColStart int `json:"col_start"`
	ColEnd   int `json:"col_end"`
}

// Width returns the number of columns in the window.
func (w Window) Width() int { return w.ColEnd - w.ColStart }

// Height returns the number of rows in the window.
func (w Window) Height() int { return w.RowEnd - w.RowStart }

// Cells returns the number of cells covered by the window.
func (w Window) Cells() int { return w.Width() * w.Height() }

// Dataset is an open single-band raster. Implementations are not safe for
// concurrent use; each query owns its Dataset and closes it when done.
type Dataset interface {
	// Path returns the location the dataset was opened from.
	Path() string
	// Size returns the grid dimensions in pixels.
	Size() (width, height int)
	// Transform returns the affine pixel-to-geographic transform.
	Transform() GeoTransform
	// Bounds returns the geographic extent.
	Bounds() Bounds
	// NoData returns the band's nodata sentinel, if any.
	NoData() NoData
	// ReadWindow reads the first band inside w in row-major order.
	ReadWindow(w Window) ([]float64, error)
	// Close releases the underlying handle.
	Close() error
}
