package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/popdensity-cli/internal/config"
	"github.com/sells-group/popdensity-cli/internal/density"
)

// testCoord sits in the middle cell (row 5, col 5) of the fixture grids.
var testCoord = density.Coordinate{Latitude: 39.895, Longitude: 116.415}

// writeGrid writes an 11x11 ESRI ASCII grid covering lon 116.36-116.47,
// lat 39.84-39.95 at 0.01° with every cell set to value.
func writeGrid(t *testing.T, path string, value float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("ncols 11\nnrows 11\nxllcorner 116.36\nyllcorner 39.84\ncellsize 0.01\nNODATA_value -9999\n")
	for row := 0; row < 11; row++ {
		cells := make([]string, 11)
		for col := range cells {
			cells[col] = fmt.Sprintf("%g", value)
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// writeYears writes chn_ppp_<year>.asc grids into dir.
func writeYears(t *testing.T, dir string, values map[int]float64) {
	t.Helper()
	for year, v := range values {
		writeGrid(t, filepath.Join(dir, fmt.Sprintf("chn_ppp_%d.asc", year)), v)
	}
}

// useTestConfig installs a config reading .asc rasters from dataDir with a
// SQLite history in a temp dir, and restores the previous config after the
// test.
func useTestConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Data: config.DataConfig{
			Dir:       dataDir,
			Prefix:    "chn_ppp",
			Extension: "asc",
			MinYear:   2000,
			MaxYear:   2020,
		},
		Query: config.QueryConfig{Radii: []int{1, 3, 5}, SurroundingRadius: 2},
		Batch: config.BatchConfig{MaxConcurrentYears: 4, MaxConcurrentPoints: 8},
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "history.db"),
		},
		Fetch: config.FetchConfig{
			URLTemplate: "ftp://127.0.0.1/chn_ppp_{year}.tif",
			TimeoutSecs: 5,
			MaxAttempts: 1,
		},
		Server: config.ServerConfig{Port: 8080, RateLimit: 10, RateBurst: 20},
		Export: config.ExportConfig{Dir: t.TempDir()},
		Log:    config.LogConfig{Level: "error", Format: "console"},
	}
	t.Cleanup(func() { cfg = prev })
	return cfg
}

// resetQueryFlags restores the query command's flag variables after a test.
func resetQueryFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		queryYears, queryExport, queryOut = "", "", ""
		querySave, queryJSON = false, false
	})
}
