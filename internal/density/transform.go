// Package density answers population-density questions about a single
// coordinate: the pixel value under it, windowed statistics at several radii,
// and how the value changed across yearly rasters.
package density

import (
	"fmt"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// Coordinate is a geographic point in degrees.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%g, %g)", c.Latitude, c.Longitude)
}

// PixelIndex addresses a cell. It is only produced by Locate, so
// 0 <= Row < height and 0 <= Col < width always hold.
type PixelIndex struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Locate maps a coordinate to the pixel containing it. The bounds check runs
// first; a coordinate on the right or top edge resolves to the last column
// or row. Rotation terms of the transform are ignored.
func Locate(ds raster.Dataset, coord Coordinate) (PixelIndex, error) {
	bounds := ds.Bounds()
	if !bounds.Contains(coord.Longitude, coord.Latitude) {
		return PixelIndex{}, &QueryError{
			Kind:       KindOutOfBounds,
			Detail:     fmt.Sprintf("coordinate %s outside raster bounds", coord),
			Coordinate: coord,
			Bounds:     &bounds,
			Path:       ds.Path(),
		}
	}

	gt := ds.Transform()
	width, height := ds.Size()

	// int() truncates toward zero.
	col := int((coord.Longitude - gt.OriginX) / gt.PixelWidth)
	row := int((coord.Latitude - gt.OriginY) / gt.PixelHeight)

	// Inclusive far edges land exactly one past the last cell.
	if col == width {
		col = width - 1
	}
	if row == height {
		row = height - 1
	}

	px := PixelIndex{Row: row, Col: col}
	if row < 0 || row >= height || col < 0 || col >= width {
		return PixelIndex{}, &QueryError{
			Kind:       KindPixelOutOfRange,
			Detail:     fmt.Sprintf("pixel (%d, %d) outside %dx%d grid", row, col, width, height),
			Coordinate: coord,
			Pixel:      &px,
			Path:       ds.Path(),
		}
	}
	return px, nil
}
