package main

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity-cli/internal/density"
	"github.com/sells-group/popdensity-cli/internal/discovery"
	"github.com/sells-group/popdensity-cli/internal/raster"
	"github.com/sells-group/popdensity-cli/internal/store"
)

// dataPattern is the file naming pattern from the data config.
func dataPattern() discovery.Pattern {
	return discovery.Pattern{
		Dir:       cfg.Data.Dir,
		Prefix:    cfg.Data.Prefix,
		Extension: cfg.Data.Extension,
		MinYear:   cfg.Data.MinYear,
		MaxYear:   cfg.Data.MaxYear,
	}
}

// initCatalog builds the year resolver: the manifest when one is
// configured, otherwise a scan of the data directory.
func initCatalog() (discovery.Catalog, error) {
	if cfg.Data.Manifest != "" {
		m, err := discovery.LoadManifest(cfg.Data.Manifest)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("using manifest", zap.String("path", cfg.Data.Manifest), zap.Ints("years", m.Years()))
		warnDriver(m)
		return m, nil
	}

	r, err := discovery.Scan(dataPattern())
	if err != nil {
		return nil, err
	}
	if len(r.Years()) == 0 {
		zap.L().Warn("no raster files match the naming pattern",
			zap.String("dir", cfg.Data.Dir),
			zap.String("expected", r.Pattern().FileName(cfg.Data.MinYear)),
			zap.Strings("candidates", r.Candidates()),
		)
	}
	warnDriver(r)
	return r, nil
}

func warnDriver(catalog discovery.Catalog) {
	if msg := driverWarning(catalog); msg != "" {
		zap.L().Warn("raster files cannot be opened by this build", zap.String("reason", msg))
	}
}

// driverWarning reports the first catalog file extension that no raster
// driver in this build can open, or "" when every file is readable.
func driverWarning(catalog discovery.Catalog) string {
	exts := []string{}
	if r, ok := catalog.(*discovery.DirResolver); ok {
		if ext := r.Pattern().Extension; ext != "" {
			exts = append(exts, ext)
		}
	}
	for _, y := range catalog.Years() {
		if path, ok := catalog.Resolve(y); ok {
			exts = append(exts, filepath.Ext(path))
		}
	}
	for _, ext := range exts {
		if msg := raster.MissingDriver(ext); msg != "" {
			return msg
		}
	}
	return ""
}

func newQuerier() *density.Querier {
	return density.NewQuerier(raster.DefaultOpener,
		density.WithRadii(cfg.Query.Radii),
		density.WithSurroundingRadius(cfg.Query.SurroundingRadius),
	)
}

// initStore opens and migrates the history store. Driver "none" returns a
// nil store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "popdensity.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that cannot run without history.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("query history is disabled (store.driver=none)")
	}
	return st, nil
}

// resolveYears picks the years a command should query: the explicit list
// when given, otherwise every year the catalog holds.
func resolveYears(raw string, catalog discovery.Catalog) ([]int, error) {
	if strings.TrimSpace(raw) != "" {
		return density.ParseYears(raw)
	}
	years := catalog.Years()
	if len(years) == 0 {
		return nil, eris.New("no raster years available; run `popdensity years` to check the data directory")
	}
	return years, nil
}

// parseCoordinate reads LAT and LON arguments.
func parseCoordinate(latArg, lonArg string) (density.Coordinate, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latArg), 64)
	if err != nil || lat < -90 || lat > 90 {
		return density.Coordinate{}, eris.Errorf("invalid latitude %q (want -90..90)", latArg)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonArg), 64)
	if err != nil || lon < -180 || lon > 180 {
		return density.Coordinate{}, eris.Errorf("invalid longitude %q (want -180..180)", lonArg)
	}
	return density.Coordinate{Latitude: lat, Longitude: lon}, nil
}
