package density

import (
	"math"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

// KMPerDegree converts degrees to kilometres. It is applied to both axes
// regardless of latitude, so areas away from the equator are overstated
// along longitude.
const KMPerDegree = 111.32

// DefaultRadii are the pixel radii analysed when none are configured.
var DefaultRadii = []int{1, 3, 5}

// SurroundingRadius is the radius of the 5×5 surrounding-statistics block.
const SurroundingRadius = 2

// PixelAreaKM2 returns the approximate ground area of one cell.
func PixelAreaKM2(gt raster.GeoTransform) float64 {
	return math.Abs(gt.PixelWidth*gt.PixelHeight) * KMPerDegree * KMPerDegree
}

// RadiusReport holds the statistics for one analysis radius.
type RadiusReport struct {
	Radius int           `json:"radius"`
	Window raster.Window `json:"window"`
	Stats  Statistics    `json:"stats"`

	// AreaKM2 is valid cells × pixel area.
	AreaKM2 float64 `json:"area_km2"`

	// TotalPopulation sums the valid cell values.
	TotalPopulation float64 `json:"total_population"`

	// EstimatedPopulation is mean density × AreaKM2.
	EstimatedPopulation float64 `json:"estimated_population"`
}

// AnalyzeRadii extracts and summarises one window per radius around center.
// Radii are processed independently, in the order given.
func AnalyzeRadii(ds raster.Dataset, center PixelIndex, radii []int) ([]RadiusReport, error) {
	pixelArea := PixelAreaKM2(ds.Transform())
	nodata := ds.NoData()

	reports := make([]RadiusReport, 0, len(radii))
	for _, r := range radii {
		w, values, err := Extract(ds, center, r)
		if err != nil {
			return nil, err
		}
		reports = append(reports, buildReport(r, w, Summarize(values, nodata), pixelArea))
	}
	return reports, nil
}

func buildReport(radius int, w raster.Window, st Statistics, pixelArea float64) RadiusReport {
	area := float64(st.Count) * pixelArea
	return RadiusReport{
		Radius:              radius,
		Window:              w,
		Stats:               st,
		AreaKM2:             area,
		TotalPopulation:     st.Sum,
		EstimatedPopulation: st.Mean * area,
	}
}
