package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// FeatureCollection builds one point feature per (coordinate, year) outcome.
func FeatureCollection(batches ...*density.BatchResult) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	bounds := geom.NewBounds(geom.XY)
	for _, b := range batches {
		pt := geom.NewPointFlat(geom.XY, []float64{b.Coordinate.Longitude, b.Coordinate.Latitude})
		bounds.Extend(pt)
		for _, o := range b.Outcomes {
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:         fmt.Sprintf("%s,%s/%d", formatCoord(b.Coordinate.Latitude), formatCoord(b.Coordinate.Longitude), o.Year),
				Geometry:   pt,
				Properties: outcomeProperties(o),
			})
		}
	}
	if len(fc.Features) > 0 {
		fc.BBox = bounds
	}
	return fc
}

func outcomeProperties(o density.Outcome) map[string]any {
	props := map[string]any{
		"year": o.Year,
		"ok":   o.OK(),
	}
	if !o.OK() {
		if o.Err != nil {
			props["error_kind"] = string(o.Err.Kind)
			props["error"] = o.Err.Error()
		}
		return props
	}

	r := o.Result
	props["density_per_km2"] = r.Point.Density
	props["total_population_in_pixel"] = r.Point.PixelPopulation
	props["pixel_area_km2"] = r.Point.PixelAreaKM2
	props["point_is_nodata"] = r.Point.IsNoData
	props["surrounding_mean"] = r.Surrounding.Mean
	props["surrounding_median"] = r.Surrounding.Median
	props["surrounding_count"] = r.Surrounding.Count
	for _, rr := range r.Radii {
		prefix := fmt.Sprintf("radius_%d_", rr.Radius)
		props[prefix+"mean"] = rr.Stats.Mean
		props[prefix+"total"] = rr.TotalPopulation
		props[prefix+"max"] = rr.Stats.Max
		props[prefix+"pixel_count"] = rr.Stats.Count
		props[prefix+"area_km2"] = rr.AreaKM2
	}
	return props
}

// WriteGeoJSON writes batches as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, batches ...*density.BatchResult) error {
	data, err := json.MarshalIndent(FeatureCollection(batches...), "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}
