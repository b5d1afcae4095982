// Package config loads business-finder configuration from config.yaml and
// BIZFINDER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
}

// GeocodeConfig configures the Nominatim geocoder.
type GeocodeConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RegionAbbrev string  `yaml:"region_abbrev" mapstructure:"region_abbrev"`
	RegionFull   string  `yaml:"region_full" mapstructure:"region_full"`
	CacheTTLMins int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// OverpassConfig configures the spatial query client.
type OverpassConfig struct {
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs int     `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	Multiplier         float64 `yaml:"multiplier" mapstructure:"multiplier"`
	QueryTimeoutSecs   int     `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	HTTPTimeoutSecs    int     `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
}

// SearchConfig configures the website finder.
type SearchConfig struct {
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults       int      `yaml:"max_results" mapstructure:"max_results"`
	UserAgents       []string `yaml:"user_agents" mapstructure:"user_agents"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// EnrichConfig configures batch website enrichment.
type EnrichConfig struct {
	DelaySecs float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
}

// Delay returns the pause between consecutive website lookups.
func (c EnrichConfig) Delay() time.Duration {
	return time.Duration(c.DelaySecs * float64(time.Second))
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ExportConfig sets export defaults.
type ExportConfig struct {
	Format         string `yaml:"format" mapstructure:"format"`
	IncompleteOnly bool   `yaml:"incomplete_only" mapstructure:"incomplete_only"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIZFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "business_finder")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.region_abbrev", "CO")
	v.SetDefault("geocode.region_full", "Colorado")
	v.SetDefault("geocode.cache_ttl_mins", 60)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api")
	v.SetDefault("overpass.max_attempts", 3)
	v.SetDefault("overpass.initial_backoff_secs", 5)
	v.SetDefault("overpass.multiplier", 2.0)
	v.SetDefault("overpass.query_timeout_secs", 25)
	v.SetDefault("overpass.http_timeout_secs", 60)
	v.SetDefault("search.base_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.timeout_secs", 10)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.breaker_threshold", 0)
	v.SetDefault("search.breaker_reset_secs", 60)
	v.SetDefault("enrich.delay_secs", 1.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "business-finder.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.incomplete_only", false)

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

// Validate checks the settings a command needs. mode is one of
// "discover", "enrich", "export", "runs" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover", "enrich", "export", "runs":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres or none, got %q", c.Store.Driver))
	}
	if mode != "discover" && c.Store.Driver == "none" {
		errs = append(errs, fmt.Sprintf("%s needs a store; store.driver is none", mode))
	}

	if c.Geocode.TimeoutSecs <= 0 {
		errs = append(errs, "geocode.timeout_secs must be > 0")
	}
	if c.Geocode.RateLimit < 0 {
		errs = append(errs, "geocode.rate_limit must be >= 0")
	}
	if c.Overpass.MaxAttempts < 1 || c.Overpass.MaxAttempts > 10 {
		errs = append(errs, "overpass.max_attempts must be between 1 and 10")
	}
	if c.Overpass.InitialBackoffSecs < 0 {
		errs = append(errs, "overpass.initial_backoff_secs must be >= 0")
	}
	if c.Overpass.QueryTimeoutSecs <= 0 {
		errs = append(errs, "overpass.query_timeout_secs must be > 0")
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, "search.max_results must be > 0")
	}
	if c.Enrich.DelaySecs < 0 {
		errs = append(errs, "enrich.delay_secs must be >= 0")
	}
	switch c.Export.Format {
	case "", "csv", "xlsx", "shp":
	default:
		errs = append(errs, fmt.Sprintf("export.format must be csv, xlsx or shp, got %q", c.Export.Format))
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
