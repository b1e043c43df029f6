package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shpRecord struct {
	shape shp.Shape
	id    string
	name  string
}

// writeTestShapefile writes records with id/name attributes and returns the
// .shp path.
func writeTestShapefile(t *testing.T, kind shp.ShapeType, records []shpRecord) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "points")

	w, err := shp.Create(base+".shp", kind)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ID", 16),
		shp.StringField("NAME", 32),
	}))
	for _, r := range records {
		n := int(w.Write(r.shape))
		require.NoError(t, w.WriteAttribute(n, 0, r.id))
		require.NoError(t, w.WriteAttribute(n, 1, r.name))
	}
	w.Close()

	// go-shp's writer drops the dot before the dbf extension.
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return base + ".shp"
}

func TestReadShapefilePoints(t *testing.T) {
	path := writeTestShapefile(t, shp.POINT, []shpRecord{
		{shape: &shp.Point{X: 116.4074, Y: 39.9042}, id: "bj", name: "Beijing"},
		{shape: &shp.Point{X: 121.4737, Y: 31.2304}, name: "Shanghai"},
	})

	points, err := ReadShapefilePoints(path)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "bj", points[0].ID)
	assert.Equal(t, "Beijing", points[0].Name)
	assert.Equal(t, 39.9042, points[0].Coordinate.Latitude)
	assert.Equal(t, 116.4074, points[0].Coordinate.Longitude)

	assert.Equal(t, "2", points[1].ID, "record number when id is blank")
	assert.Equal(t, "Shanghai", points[1].Name)
}

func TestReadShapefilePoints_ViaReadPoints(t *testing.T) {
	path := writeTestShapefile(t, shp.POINT, []shpRecord{
		{shape: &shp.Point{X: 114.3055, Y: 30.5928}, id: "wh", name: "Wuhan"},
	})
	points, err := ReadPoints(t.Context(), path)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "wh", points[0].ID)
}

func TestReadShapefilePoints_SkipsNonPoints(t *testing.T) {
	line := shp.NewPolyLine([][]shp.Point{{{X: 116, Y: 39}, {X: 117, Y: 40}}})
	path := writeTestShapefile(t, shp.POLYLINE, []shpRecord{{shape: line, id: "road"}})

	points, err := ReadShapefilePoints(path)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestReadShapefilePoints_OutOfRange(t *testing.T) {
	path := writeTestShapefile(t, shp.POINT, []shpRecord{
		{shape: &shp.Point{X: 500000, Y: 4400000}, id: "utm"},
	})
	_, err := ReadShapefilePoints(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestReadShapefilePoints_Missing(t *testing.T) {
	_, err := ReadShapefilePoints(filepath.Join(t.TempDir(), "none.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shapefile: open")
}
