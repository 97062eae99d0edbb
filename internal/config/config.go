// Package config loads envprep settings from config.yaml, .env and ENVPREP_* variables.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Study    StudyConfig     `yaml:"study" mapstructure:"study"`
	Datasets []DatasetConfig `yaml:"datasets" mapstructure:"datasets"`
	Grid     GridConfig      `yaml:"grid" mapstructure:"grid"`
	Sample   SampleConfig    `yaml:"sample" mapstructure:"sample"`
	Export   ExportConfig    `yaml:"export" mapstructure:"export"`
	Backend  BackendConfig   `yaml:"backend" mapstructure:"backend"`
	Catalog  CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Store    StoreConfig     `yaml:"store" mapstructure:"store"`
	S3       S3Config        `yaml:"s3" mapstructure:"s3"`
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Remote   RemoteConfig    `yaml:"remote" mapstructure:"remote"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
}

// StudyConfig selects the study area and the time window.
type StudyConfig struct {
	Area       string `yaml:"area" mapstructure:"area"`
	Name       string `yaml:"name" mapstructure:"name"`
	StartDate  string `yaml:"start_date" mapstructure:"start_date"`
	EndDate    string `yaml:"end_date" mapstructure:"end_date"`
	YearStart  int    `yaml:"year_start" mapstructure:"year_start"`
	YearEnd    int    `yaml:"year_end" mapstructure:"year_end"`
	MonthStart int    `yaml:"month_start" mapstructure:"month_start"`
	MonthEnd   int    `yaml:"month_end" mapstructure:"month_end"`
}

// DatasetConfig describes one input collection and how it is normalized.
type DatasetConfig struct {
	Collection  string  `yaml:"collection" mapstructure:"collection"`
	Band        string  `yaml:"band" mapstructure:"band"`
	Name        string  `yaml:"name" mapstructure:"name"`
	Resample    string  `yaml:"resample" mapstructure:"resample"`
	ScaleFactor float64 `yaml:"scale_factor" mapstructure:"scale_factor"`
	Offset      float64 `yaml:"offset" mapstructure:"offset"`
}

// GridConfig is the shared target grid.
type GridConfig struct {
	CRS   string  `yaml:"crs" mapstructure:"crs"`
	Scale float64 `yaml:"scale" mapstructure:"scale"`
}

// SampleConfig controls point sampling.
type SampleConfig struct {
	Geometries bool `yaml:"geometries" mapstructure:"geometries"`
	DropNulls  bool `yaml:"drop_nulls" mapstructure:"drop_nulls"`
}

// ExportConfig controls the output table.
type ExportConfig struct {
	Description string `yaml:"description" mapstructure:"description"`
	Format      string `yaml:"format" mapstructure:"format"`
	Destination string `yaml:"destination" mapstructure:"destination"`
	Folder      string `yaml:"folder" mapstructure:"folder"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BackendConfig picks where plans are evaluated.
type BackendConfig struct {
	Kind    string `yaml:"kind" mapstructure:"kind"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// CatalogConfig points the local backend at its scene catalog.
type CatalogConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the task store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// S3Config holds object-store credentials for the s3 export destination.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Region    string `yaml:"region" mapstructure:"region"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
}

// ServerConfig configures the task API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	Token       string   `yaml:"token" mapstructure:"token"`
}

// RemoteConfig configures the remote backend client.
type RemoteConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Token            string  `yaml:"token" mapstructure:"token"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	PollIntervalMs   int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultDatasets is the reference four-collection stack.
func DefaultDatasets() []DatasetConfig {
	return []DatasetConfig{
		{Collection: "MODIS/006/MOD11A2", Band: "LST_Day_1km", Name: "LST", Resample: "bilinear", ScaleFactor: 0.02, Offset: -273.15},
		{Collection: "MODIS/006/MOD16A2", Band: "ET", Name: "ET", Resample: "bilinear"},
		{Collection: "UCSB-CHG/CHIRPS/DAILY", Band: "precipitation", Name: "precipitation", Resample: "bilinear"},
		{Collection: "MODIS/006/MOD13Q1", Band: "NDVI", Name: "NDVI", Resample: "nearest"},
	}
}

func datasetDefaults() []map[string]any {
	ds := DefaultDatasets()
	out := make([]map[string]any, 0, len(ds))
	for _, d := range ds {
		out = append(out, map[string]any{
			"collection":   d.Collection,
			"band":         d.Band,
			"name":         d.Name,
			"resample":     d.Resample,
			"scale_factor": d.ScaleFactor,
			"offset":       d.Offset,
		})
	}
	return out
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, eris.Wrap(err, "config: load .env")
		}
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENVPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("study.area", "")
	v.SetDefault("study.name", "Chittagong")
	v.SetDefault("study.start_date", "2002-01-01")
	v.SetDefault("study.end_date", "2024-12-31")
	v.SetDefault("study.year_start", 2002)
	v.SetDefault("study.year_end", 2022)
	v.SetDefault("study.month_start", 1)
	v.SetDefault("study.month_end", 12)
	v.SetDefault("datasets", datasetDefaults())
	v.SetDefault("grid.crs", "EPSG:4326")
	v.SetDefault("grid.scale", 250.0)
	v.SetDefault("sample.geometries", true)
	v.SetDefault("sample.drop_nulls", false)
	v.SetDefault("export.description", "Chittagong_ML_Data")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.destination", "drive")
	v.SetDefault("export.folder", "exports")
	v.SetDefault("export.database_url", "")
	v.SetDefault("backend.kind", "local")
	v.SetDefault("backend.workers", 4)
	v.SetDefault("catalog.dir", "catalog")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "envprep.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.secure", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.token", "")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.rate_limit", 5.0)
	v.SetDefault("remote.timeout_secs", 30)
	v.SetDefault("remote.max_attempts", 3)
	v.SetDefault("remote.initial_backoff_ms", 500)
	v.SetDefault("remote.max_backoff_ms", 10000)
	v.SetDefault("remote.poll_interval_ms", 2000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the settings required by the given mode are present.
// Modes: "export", "serve", "remote".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "export":
		if c.Study.Area == "" {
			errs = append(errs, "study.area is required")
		}
		switch c.Export.Destination {
		case "drive":
			if c.Export.Folder == "" {
				errs = append(errs, "export.folder is required for drive exports")
			}
		case "s3":
			if c.S3.Endpoint == "" || c.S3.Bucket == "" {
				errs = append(errs, "s3.endpoint and s3.bucket are required for s3 exports")
			}
		case "postgres":
			if c.Export.DatabaseURL == "" && c.Store.DatabaseURL == "" {
				errs = append(errs, "export.database_url (or store.database_url) is required for postgres exports")
			}
		default:
			errs = append(errs, "export.destination must be one of drive, s3, postgres")
		}
		if c.Backend.Kind == "remote" && c.Remote.BaseURL == "" {
			errs = append(errs, "remote.base_url is required when backend.kind is remote")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "remote":
		if c.Remote.BaseURL == "" {
			errs = append(errs, "remote.base_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Backend.Workers < 1 || c.Backend.Workers > 64 {
		errs = append(errs, "backend.workers must be between 1 and 64")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres store")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
