//go:build gdal

package raster

import (
	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func init() {
	godal.RegisterAll()
	for _, ext := range []string{".tif", ".tiff", ".vrt", ".img"} {
		Register(ext, OpenGDAL)
	}
}

// gdalDataset reads band 1 of a GDAL dataset.
type gdalDataset struct {
	path      string
	ds        *godal.Dataset
	band      godal.Band
	width     int
	height    int
	transform GeoTransform
	nodata    NoData
}

// OpenGDAL opens any raster GDAL can read. Only the first band is used.
func OpenGDAL(path string) (Dataset, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: gdal open %s", path)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		_ = ds.Close()
		return nil, eris.Wrapf(err, "raster: gdal geotransform %s", path)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		_ = ds.Close()
		return nil, eris.Errorf("raster: %s has no bands", path)
	}

	st := ds.Structure()
	out := &gdalDataset{
		path:      path,
		ds:        ds,
		band:      bands[0],
		width:     st.SizeX,
		height:    st.SizeY,
		transform: FromGDAL(gt),
	}
	if nd, ok := bands[0].NoData(); ok {
		out.nodata = NoData{Value: nd, Valid: true}
	}
	if out.transform.Rotated() {
		zap.L().Warn("raster: rotated geotransform, rotation terms ignored", zap.String("path", path))
	}
	return out, nil
}

func (g *gdalDataset) Path() string            { return g.path }
func (g *gdalDataset) Size() (int, int)        { return g.width, g.height }
func (g *gdalDataset) Transform() GeoTransform { return g.transform }
func (g *gdalDataset) Bounds() Bounds          { return BoundsOf(g.transform, g.width, g.height) }
func (g *gdalDataset) NoData() NoData          { return g.nodata }

func (g *gdalDataset) ReadWindow(w Window) ([]float64, error) {
	if w.Cells() <= 0 {
		return nil, eris.Errorf("raster: empty window %+v", w)
	}
	buf := make([]float64, w.Cells())
	if err := g.band.Read(w.ColStart, w.RowStart, buf, w.Width(), w.Height()); err != nil {
		return nil, eris.Wrapf(err, "raster: gdal read %s", g.path)
	}
	return buf, nil
}

func (g *gdalDataset) Close() error {
	return eris.Wrapf(g.ds.Close(), "raster: gdal close %s", g.path)
}
