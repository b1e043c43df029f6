package discovery

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Catalog is a resolver that can also list what it holds.
type Catalog interface {
	Resolve(year int) (string, bool)
	Years() []int
}

// Manifest is an explicit year→file listing, for data sets that do not follow
// a naming pattern.
//
//	manifest:
//	  dir: /data/worldpop
//	  years:
//	    2000: chn_ppp_2000.tif
//	    2020: /mnt/archive/chn_2020_v2.tif
type Manifest struct {
	Dir   string         `yaml:"dir"`
	Years map[int]string `yaml:"years"`
}

// ManifestResolver resolves years from a Manifest.
type ManifestResolver struct {
	files map[int]string
}

// LoadManifest reads a YAML manifest. Relative paths are resolved against
// the manifest's dir, or the manifest file's own directory when dir is unset.
func LoadManifest(path string) (*ManifestResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read manifest %s", path)
	}

	var wrapper struct {
		Manifest Manifest `yaml:"manifest"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "discovery: parse manifest")
	}
	m := wrapper.Manifest
	if len(m.Years) == 0 {
		return nil, eris.Errorf("discovery: manifest %s lists no years", path)
	}

	base := m.Dir
	if base == "" {
		base = filepath.Dir(path)
	}
	return NewManifestResolver(base, m.Years), nil
}

// NewManifestResolver joins relative entries of files onto base.
func NewManifestResolver(base string, files map[int]string) *ManifestResolver {
	r := &ManifestResolver{files: make(map[int]string, len(files))}
	for year, p := range files {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		r.files[year] = p
	}
	return r
}

// Resolve implements density.Resolver.
func (r *ManifestResolver) Resolve(year int) (string, bool) {
	p, ok := r.files[year]
	return p, ok
}

// Years returns the listed years in ascending order.
func (r *ManifestResolver) Years() []int {
	return sortedYears(r.files)
}
