package raster

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

func init() {
	Register(".asc", OpenASCIIGrid)
}

// maxASCIICells bounds the grid size an ASCII header may declare. Cells
// are held as float64, so this is 8 GiB of values.
const maxASCIICells = 1 << 30

// initialCells caps the preallocation made from an unverified header.
const initialCells = 1 << 20

// asciiHeader holds the ESRI ASCII grid header keys.
type asciiHeader struct {
	ncols, nrows         int
	xll, yll             float64
	xCentered, yCentered bool
	cellSize             float64
	nodata               NoData
	haveX, haveY         bool
	haveSize             bool
}

// OpenASCIIGrid reads an ESRI ASCII grid file fully into memory.
func OpenASCIIGrid(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open ascii grid %s", path)
	}
	defer func() { _ = f.Close() }()

	g, err := ReadASCIIGrid(path, f)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ReadASCIIGrid parses an ESRI ASCII grid from r. The header keys ncols,
// nrows, xllcorner|xllcenter, yllcorner|yllcenter and cellsize are required;
// NODATA_value is optional. Rows run north to south.
func ReadASCIIGrid(path string, r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	var h asciiHeader
	var pending string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if !isHeaderKey(key) {
			pending = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: ascii grid %s: missing value for %s", path, key)
		}
		if err := h.set(key, sc.Text()); err != nil {
			return nil, eris.Wrapf(err, "raster: ascii grid %s", path)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "raster: ascii grid %s: scan header", path)
	}
	if h.ncols <= 0 || h.nrows <= 0 || !h.haveX || !h.haveY || !h.haveSize {
		return nil, eris.Errorf("raster: ascii grid %s: incomplete header", path)
	}
	if h.ncols > math.MaxInt/h.nrows || h.ncols*h.nrows > maxASCIICells {
		return nil, eris.Errorf("raster: ascii grid %s: header size %dx%d exceeds %d cells", path, h.ncols, h.nrows, maxASCIICells)
	}
	cells := h.ncols * h.nrows

	values := make([]float64, 0, min(cells, initialCells))
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return eris.Wrapf(err, "raster: ascii grid %s: cell %d", path, len(values))
		}
		values = append(values, v)
		return nil
	}
	if pending != "" {
		if err := parse(pending); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if len(values) == cells {
			return nil, eris.Errorf("raster: ascii grid %s: more than %d cells, header says %dx%d", path, cells, h.ncols, h.nrows)
		}
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "raster: ascii grid %s: scan cells", path)
	}
	if len(values) != cells {
		return nil, eris.Errorf("raster: ascii grid %s: got %d cells, header says %dx%d", path, len(values), h.ncols, h.nrows)
	}

	left, bottom := h.xll, h.yll
	if h.xCentered {
		left -= h.cellSize / 2
	}
	if h.yCentered {
		bottom -= h.cellSize / 2
	}
	gt := GeoTransform{
		OriginX:     left,
		PixelWidth:  h.cellSize,
		OriginY:     bottom + float64(h.nrows)*h.cellSize,
		PixelHeight: -h.cellSize,
	}
	return NewGrid(path, h.ncols, h.nrows, gt, h.nodata, values)
}

func isHeaderKey(key string) bool {
	switch key {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

func (h *asciiHeader) set(key, raw string) error {
	switch key {
	case "ncols", "nrows":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return eris.Wrapf(err, "parse %s", key)
		}
		if key == "ncols" {
			h.ncols = n
		} else {
			h.nrows = n
		}
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return eris.Wrapf(err, "parse %s", key)
	}
	switch key {
	case "xllcorner", "xllcenter":
		h.xll, h.haveX = v, true
		h.xCentered = key == "xllcenter"
	case "yllcorner", "yllcenter":
		h.yll, h.haveY = v, true
		h.yCentered = key == "yllcenter"
	case "cellsize":
		if v <= 0 {
			return eris.Errorf("cellsize must be positive, got %g", v)
		}
		h.cellSize, h.haveSize = v, true
	case "nodata_value":
		h.nodata = NoData{Value: v, Valid: true}
	}
	return nil
}
