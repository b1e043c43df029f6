package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Query  QueryConfig  `yaml:"query" mapstructure:"query"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the yearly raster files.
type DataConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Extension string `yaml:"extension" mapstructure:"extension"`
	MinYear   int    `yaml:"min_year" mapstructure:"min_year"`
	MaxYear   int    `yaml:"max_year" mapstructure:"max_year"`
	Manifest  string `yaml:"manifest" mapstructure:"manifest"` // overrides the pattern scan when set
}

// QueryConfig configures point queries.
type QueryConfig struct {
	Radii             []int `yaml:"radii" mapstructure:"radii"`
	SurroundingRadius int   `yaml:"surrounding_radius" mapstructure:"surrounding_radius"`
}

// BatchConfig configures multi-year and multi-point runs.
type BatchConfig struct {
	MaxConcurrentYears  int `yaml:"max_concurrent_years" mapstructure:"max_concurrent_years"`
	MaxConcurrentPoints int `yaml:"max_concurrent_points" mapstructure:"max_concurrent_points"`
}

// StoreConfig configures the query history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FetchConfig configures raster downloads.
type FetchConfig struct {
	URLTemplate string `yaml:"url_template" mapstructure:"url_template"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POPDENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", ".")
	v.SetDefault("data.prefix", "chn_ppp")
	v.SetDefault("data.extension", "tif")
	v.SetDefault("data.min_year", 2000)
	v.SetDefault("data.max_year", 2020)
	v.SetDefault("data.manifest", "")
	v.SetDefault("query.radii", []int{1, 3, 5})
	v.SetDefault("query.surrounding_radius", 2)
	v.SetDefault("batch.max_concurrent_years", 4)
	v.SetDefault("batch.max_concurrent_points", 8)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "popdensity.db")
	v.SetDefault("fetch.url_template", "ftp://ftp.worldpop.org/GIS/Population/Global_2000_2020/{year}/CHN/chn_ppp_{year}.tif")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("export.dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "query", "serve" or "fetch".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "query":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
	case "fetch":
		if !strings.Contains(c.Fetch.URLTemplate, "{year}") {
			errs = append(errs, "fetch.url_template must contain {year}")
		}
		if c.Fetch.MaxAttempts < 1 {
			errs = append(errs, "fetch.max_attempts must be >= 1")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			errs = append(errs, "fetch.timeout_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(c.Query.Radii) == 0 {
		errs = append(errs, "query.radii must not be empty")
	}
	for _, r := range c.Query.Radii {
		if r < 0 {
			errs = append(errs, "query.radii values must be >= 0")
			break
		}
	}
	if c.Query.SurroundingRadius < 0 {
		errs = append(errs, "query.surrounding_radius must be >= 0")
	}
	if c.Data.Manifest == "" && c.Data.MinYear > c.Data.MaxYear {
		errs = append(errs, "data.min_year must be <= data.max_year")
	}
	if c.Batch.MaxConcurrentYears < 1 || c.Batch.MaxConcurrentYears > 64 {
		errs = append(errs, "batch.max_concurrent_years must be between 1 and 64")
	}
	if c.Batch.MaxConcurrentPoints < 1 || c.Batch.MaxConcurrentPoints > 256 {
		errs = append(errs, "batch.max_concurrent_points must be between 1 and 256")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, none")
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
