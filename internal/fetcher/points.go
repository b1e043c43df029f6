package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// Point is one location from a point list.
type Point struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Coordinate density.Coordinate `json:"coordinate"`
}

var (
	latHeaders  = []string{"lat", "latitude", "y"}
	lonHeaders  = []string{"lon", "lng", "long", "longitude", "x"}
	idHeaders   = []string{"id", "fid", "point_id"}
	nameHeaders = []string{"name", "label"}
)

// columns maps the point fields to positions in a header row; -1 means absent.
type columns struct {
	lat, lon, id, name int
}

func findColumns(header []string) (columns, error) {
	cols := columns{lat: -1, lon: -1, id: -1, name: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimRight(h, "\x00")))
		switch {
		case cols.lat < 0 && contains(latHeaders, h):
			cols.lat = i
		case cols.lon < 0 && contains(lonHeaders, h):
			cols.lon = i
		case cols.id < 0 && contains(idHeaders, h):
			cols.id = i
		case cols.name < 0 && contains(nameHeaders, h):
			cols.name = i
		}
	}
	if cols.lat < 0 || cols.lon < 0 {
		return cols, eris.Errorf("points: header %v needs latitude and longitude columns", header)
	}
	return cols, nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// parse turns one data row into a Point. Blank rows return ok=false.
// line is the 1-based row number used in errors and as the default ID.
func (c columns) parse(row []string, line int) (Point, bool, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	latStr, lonStr := field(c.lat), field(c.lon)
	if latStr == "" && lonStr == "" {
		return Point{}, false, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Point{}, false, eris.Errorf("points: row %d: invalid latitude %q", line, latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Point{}, false, eris.Errorf("points: row %d: invalid longitude %q", line, lonStr)
	}
	coord := density.Coordinate{Latitude: lat, Longitude: lon}
	if err := validCoordinate(coord); err != nil {
		return Point{}, false, eris.Wrapf(err, "points: row %d", line)
	}

	id := field(c.id)
	if id == "" {
		id = strconv.Itoa(line)
	}
	return Point{ID: id, Name: field(c.name), Coordinate: coord}, true, nil
}

func validCoordinate(c density.Coordinate) error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return eris.Errorf("latitude %g outside [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return eris.Errorf("longitude %g outside [-180, 180]", c.Longitude)
	}
	return nil
}

// pointsFromRows reads a header row followed by data rows.
func pointsFromRows(rows [][]string) ([]Point, error) {
	if len(rows) == 0 {
		return nil, eris.New("points: no header row")
	}
	cols, err := findColumns(rows[0])
	if err != nil {
		return nil, err
	}
	var points []Point
	for i, row := range rows[1:] {
		p, ok, err := cols.parse(row, i+1)
		if err != nil {
			return nil, err
		}
		if ok {
			points = append(points, p)
		}
	}
	return points, nil
}

// ReadPoints loads a point list, choosing the reader by file extension:
// .csv, .tsv, .txt, .xlsx or .shp.
func ReadPoints(ctx context.Context, path string) ([]Point, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "points: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		opts := CSVOptions{TrimSpace: true, Comment: '#'}
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		return ReadCSVPoints(ctx, f, opts)
	case ".xlsx":
		return ReadXLSXPoints(path, XLSXOptions{})
	case ".shp":
		return ReadShapefilePoints(path)
	default:
		return nil, eris.Errorf("points: unsupported file type %q", filepath.Ext(path))
	}
}
