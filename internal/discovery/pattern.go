// Package discovery maps years to the raster files that hold them.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pattern describes yearly file names of the form <Prefix>_<YYYY>.<Extension>.
type Pattern struct {
	Dir       string
	Prefix    string
	Extension string
	MinYear   int
	MaxYear   int
}

// DefaultPattern matches the WorldPop China rasters chn_ppp_2000.tif … chn_ppp_2020.tif.
func DefaultPattern(dir string) Pattern {
	return Pattern{Dir: dir, Prefix: "chn_ppp", Extension: "tif", MinYear: 2000, MaxYear: 2020}
}

// FileName returns the base name the pattern expects for year.
func (p Pattern) FileName(year int) string {
	return fmt.Sprintf("%s_%d.%s", p.Prefix, year, p.ext())
}

// Path returns the full path the pattern expects for year.
func (p Pattern) Path(year int) string {
	return filepath.Join(p.Dir, p.FileName(year))
}

// InRange reports whether year is within [MinYear, MaxYear].
func (p Pattern) InRange(year int) bool {
	return year >= p.MinYear && year <= p.MaxYear
}

func (p Pattern) ext() string {
	return strings.TrimPrefix(p.Extension, ".")
}

func (p Pattern) regexp() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(p.Prefix) + `_(\d{4})\.` + regexp.QuoteMeta(p.ext()) + `$`)
}

// DirResolver resolves years to files found by scanning a directory.
type DirResolver struct {
	pattern Pattern
	files   map[int]string
	others  []string
}

// Scan lists p.Dir and records every file matching the pattern whose year is
// in range. Files with the right extension that do not match are kept as
// Candidates.
func Scan(p Pattern) (*DirResolver, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read dir %s", p.Dir)
	}

	re := p.regexp()
	suffix := "." + strings.ToLower(p.ext())
	r := &DirResolver{pattern: p, files: map[int]string{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		m := re.FindStringSubmatch(name)
		if m == nil {
			if strings.HasSuffix(strings.ToLower(name), suffix) {
				r.others = append(r.others, name)
			}
			continue
		}
		year, _ := strconv.Atoi(m[1])
		if !p.InRange(year) {
			zap.L().Debug("discovery: year out of range", zap.String("file", name), zap.Int("year", year))
			r.others = append(r.others, name)
			continue
		}
		r.files[year] = filepath.Join(p.Dir, name)
	}
	sort.Strings(r.others)

	zap.L().Debug("discovery: scanned directory",
		zap.String("dir", p.Dir),
		zap.Int("years", len(r.files)),
		zap.Int("other_files", len(r.others)),
	)
	return r, nil
}

// Resolve implements density.Resolver.
func (r *DirResolver) Resolve(year int) (string, bool) {
	path, ok := r.files[year]
	return path, ok
}

// Years returns the available years in ascending order.
func (r *DirResolver) Years() []int {
	return sortedYears(r.files)
}

// Candidates lists files with the expected extension that did not match the
// naming pattern.
func (r *DirResolver) Candidates() []string {
	return append([]string(nil), r.others...)
}

// Pattern returns the pattern the resolver was scanned with.
func (r *DirResolver) Pattern() Pattern {
	return r.pattern
}

func sortedYears(m map[int]string) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
