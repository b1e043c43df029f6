// Package export writes query reports as JSON, GeoJSON or XLSX.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/density"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatGeoJSON Format = "geojson"
	FormatXLSX    Format = "xlsx"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatGeoJSON, FormatXLSX:
		return f, nil
	}
	return "", eris.Errorf("export: unknown format %q (want json, geojson or xlsx)", s)
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// FileName returns the default report name for a batch:
// population_<year>_<lat>_<lon> for a single year and
// population_multi_<lat>_<lon> otherwise.
func FileName(b *density.BatchResult, f Format) string {
	lat := formatCoord(b.Coordinate.Latitude)
	lon := formatCoord(b.Coordinate.Longitude)
	if len(b.RequestedYears) == 1 {
		return fmt.Sprintf("population_%d_%s_%s.%s", b.RequestedYears[0], lat, lon, f.Ext())
	}
	return fmt.Sprintf("population_multi_%s_%s.%s", lat, lon, f.Ext())
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Write encodes batches to w in format f.
func Write(w io.Writer, f Format, batches ...*density.BatchResult) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, batches...)
	case FormatGeoJSON:
		return WriteGeoJSON(w, batches...)
	case FormatXLSX:
		return WriteXLSX(w, batches...)
	}
	return eris.Errorf("export: unknown format %q", f)
}

// WriteFile encodes batches into path, creating parent directories. The file
// is only replaced once encoding has succeeded.
func WriteFile(path string, f Format, batches ...*density.BatchResult) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, batches...); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	zap.L().Info("export: report written",
		zap.String("path", path),
		zap.String("format", string(f)),
		zap.Int("batches", len(batches)),
		zap.Int("bytes", buf.Len()),
	)
	return nil
}
