package fetcher

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// ReadShapefilePoints reads the point records of a shapefile. Attribute
// columns named like id or name are carried over; non-point shapes are
// skipped.
func ReadShapefilePoints(shpPath string) ([]Point, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	idIdx, nameIdx := -1, -1
	for i, f := range reader.Fields() {
		name := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		switch {
		case idIdx < 0 && contains(idHeaders, name):
			idIdx = i
		case nameIdx < 0 && contains(nameHeaders, name):
			nameIdx = i
		}
	}
	attr := func(i int) string {
		if i < 0 {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}

	var points []Point
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()

		var coord density.Coordinate
		switch s := shape.(type) {
		case *shp.Point:
			coord = density.Coordinate{Longitude: s.X, Latitude: s.Y}
		case *shp.PointZ:
			coord = density.Coordinate{Longitude: s.X, Latitude: s.Y}
		case *shp.PointM:
			coord = density.Coordinate{Longitude: s.X, Latitude: s.Y}
		default:
			skipped++
			continue
		}
		if err := validCoordinate(coord); err != nil {
			return nil, eris.Wrapf(err, "shapefile: record %d", n+1)
		}

		id := attr(idIdx)
		if id == "" {
			id = strconv.Itoa(n + 1)
		}
		points = append(points, Point{ID: id, Name: attr(nameIdx), Coordinate: coord})
	}

	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped non-point records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return points, nil
}
