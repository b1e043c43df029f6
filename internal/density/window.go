package density

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// WindowAround returns the window of the given pixel radius centred on
// center, clipped to a width×height grid. It always contains the centre.
func WindowAround(center PixelIndex, radius, width, height int) raster.Window {
	if radius < 0 {
		radius = 0
	}
	return raster.Window{
		RowStart: max(0, center.Row-radius),
		RowEnd:   min(height, center.Row+radius+1),
		ColStart: max(0, center.Col-radius),
		ColEnd:   min(width, center.Col+radius+1),
	}
}

// Extract reads the clipped window of the given radius around center.
func Extract(ds raster.Dataset, center PixelIndex, radius int) (raster.Window, []float64, error) {
	width, height := ds.Size()
	w := WindowAround(center, radius, width, height)
	values, err := ds.ReadWindow(w)
	if err != nil {
		return w, nil, eris.Wrapf(err, "density: read window radius %d", radius)
	}
	return w, values, nil
}
