package density

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/popdensity-cli/internal/raster"
)

const worldPopCell = 0.00833

// uniformGrid builds a size×size north-up grid with every cell set to v and
// nodata=-1, anchored at (100E, 40N).
func uniformGrid(t *testing.T, size int, v float64) *raster.Grid {
	t.Helper()
	gt := raster.GeoTransform{OriginX: 100, PixelWidth: worldPopCell, OriginY: 40, PixelHeight: -worldPopCell}
	g, err := raster.NewGrid("uniform", size, size, gt, raster.NoData{Value: -1, Valid: true}, raster.Fill(size, size, v))
	require.NoError(t, err)
	return g
}

// seqGrid builds a north-up unit-cell grid holding 1..width*height.
func seqGrid(t *testing.T, width, height int, nodata raster.NoData) *raster.Grid {
	t.Helper()
	vals := make([]float64, width*height)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	gt := raster.GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: float64(height), PixelHeight: -1}
	g, err := raster.NewGrid("seq", width, height, gt, nodata, vals)
	require.NoError(t, err)
	return g
}

// cellCenter returns the coordinate at the centre of (row, col).
func cellCenter(ds raster.Dataset, row, col int) Coordinate {
	gt := ds.Transform()
	return Coordinate{
		Longitude: gt.OriginX + (float64(col)+0.5)*gt.PixelWidth,
		Latitude:  gt.OriginY + (float64(row)+0.5)*gt.PixelHeight,
	}
}

// fakeOpener hands out fresh grids per path and remembers every grid it
// opened so tests can check they were closed.
type fakeOpener struct {
	mu     sync.Mutex
	build  map[string]func() *raster.Grid
	opened []*raster.Grid
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{build: map[string]func() *raster.Grid{}}
}

func (f *fakeOpener) add(path string, fn func() *raster.Grid) {
	f.build[path] = fn
}

func (f *fakeOpener) Open(path string) (raster.Dataset, error) {
	fn, ok := f.build[path]
	if !ok {
		return nil, eris.Errorf("open %s: no such file", path)
	}
	g := fn()
	f.mu.Lock()
	f.opened = append(f.opened, g)
	f.mu.Unlock()
	return g, nil
}

func (f *fakeOpener) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.opened {
		if !g.Closed() {
			return false
		}
	}
	return true
}

// failingDataset wraps a grid and fails every window read.
type failingDataset struct {
	*raster.Grid
}

func (failingDataset) ReadWindow(raster.Window) ([]float64, error) {
	return nil, eris.New("disk on fire")
}
