package raster

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// OpenFunc opens a dataset at path.
type OpenFunc func(path string) (Dataset, error)

// Opener opens datasets. Queries depend on this rather than on Open so
// tests can hand out in-memory grids.
type Opener interface {
	Open(path string) (Dataset, error)
}

// Open implements Opener.
func (f OpenFunc) Open(path string) (Dataset, error) { return f(path) }

var (
	driversMu sync.RWMutex
	drivers   = map[string]OpenFunc{}
)

// Register binds a file extension (with or without the leading dot) to a
// driver. Later registrations replace earlier ones.
func Register(ext string, fn OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[normalizeExt(ext)] = fn
}

// Extensions lists the registered file extensions, sorted.
func Extensions() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for ext := range drivers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Open picks a driver from the file extension of path.
func Open(path string) (Dataset, error) {
	ext := normalizeExt(filepath.Ext(path))
	driversMu.RLock()
	fn, ok := drivers[ext]
	driversMu.RUnlock()
	if !ok {
		return nil, eris.New("raster: " + MissingDriver(ext))
	}
	return fn(path)
}

// MissingDriver explains why files with extension ext cannot be opened, or
// returns "" when a driver is registered for it.
func MissingDriver(ext string) string {
	ext = normalizeExt(ext)
	driversMu.RLock()
	_, ok := drivers[ext]
	driversMu.RUnlock()
	if ok {
		return ""
	}
	msg := fmt.Sprintf("no driver for %q", ext)
	if ext == ".tif" || ext == ".tiff" || ext == ".vrt" {
		msg += " (GeoTIFF support requires building with -tags gdal)"
	}
	return msg
}

// DefaultOpener dispatches through the driver registry.
var DefaultOpener Opener = OpenFunc(Open)

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
