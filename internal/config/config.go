package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gallery/internal/catalog"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultCatalogBaseURL = "https://picsum.photos"
	defaultCatalogTimeout = 10 * time.Second
	defaultCatalogRate    = 10.0
	defaultCatalogBurst   = 5
	defaultServiceName    = "gallery"
	defaultLogLevel       = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Loader    LoaderConfig    `yaml:"loader"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Chaos     ChaosConfig     `yaml:"chaos"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP read API.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// CatalogConfig points at the upstream image catalog.
type CatalogConfig struct {
	BaseURL   string        `yaml:"base_url"`
	ImageBase string        `yaml:"image_base"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

// LoaderConfig tunes caching and paging.
type LoaderConfig struct {
	Freshness   time.Duration `yaml:"freshness"`
	PageSize    int           `yaml:"page_size"`
	MaxPageSize int           `yaml:"max_page_size"`
}

// JournalConfig selects where upstream calls are recorded. An empty
// DatabaseURL keeps the journal in memory.
type JournalConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// TelemetryConfig controls trace export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// ChaosConfig injects faults into upstream requests.
type ChaosConfig struct {
	FailureRate float64       `yaml:"failure_rate"`
	Latency     time.Duration `yaml:"latency"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         defaultPort,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Catalog: CatalogConfig{
			BaseURL:   defaultCatalogBaseURL,
			ImageBase: catalog.DefaultImageBase,
			Timeout:   defaultCatalogTimeout,
			RateLimit: defaultCatalogRate,
			Burst:     defaultCatalogBurst,
		},
		Loader: LoaderConfig{
			Freshness:   catalog.DefaultFreshness,
			PageSize:    catalog.DefaultPageSize,
			MaxPageSize: catalog.DefaultMaxPageSize,
		},
		Telemetry: TelemetryConfig{ServiceName: defaultServiceName},
		Log:       LogConfig{Level: defaultLogLevel},
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// .env file when present, and finally the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", defaultEnvFile, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}

	str("PORT", &cfg.Server.Port)
	dur("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)

	str("CATALOG_BASE_URL", &cfg.Catalog.BaseURL)
	str("CATALOG_IMAGE_BASE", &cfg.Catalog.ImageBase)
	dur("CATALOG_TIMEOUT", &cfg.Catalog.Timeout)
	float("CATALOG_RATE_LIMIT", &cfg.Catalog.RateLimit)
	integer("CATALOG_BURST", &cfg.Catalog.Burst)

	dur("LOADER_FRESHNESS", &cfg.Loader.Freshness)
	integer("LOADER_PAGE_SIZE", &cfg.Loader.PageSize)
	integer("LOADER_MAX_PAGE_SIZE", &cfg.Loader.MaxPageSize)

	str("DATABASE_URL", &cfg.Journal.DatabaseURL)

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)

	float("CHAOS_FAILURE_RATE", &cfg.Chaos.FailureRate)
	dur("CHAOS_LATENCY", &cfg.Chaos.Latency)

	str("LOG_LEVEL", &cfg.Log.Level)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if !strings.HasPrefix(c.Catalog.BaseURL, "http://") && !strings.HasPrefix(c.Catalog.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("catalog.base_url must be an http(s) URL, got %q", c.Catalog.BaseURL))
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, errors.New("catalog.timeout must be positive"))
	}
	if c.Catalog.RateLimit < 0 {
		errs = append(errs, errors.New("catalog.rate_limit must not be negative"))
	}
	if c.Loader.Freshness < 0 {
		errs = append(errs, errors.New("loader.freshness must not be negative"))
	}
	if c.Loader.MaxPageSize <= 0 {
		errs = append(errs, errors.New("loader.max_page_size must be positive"))
	}
	if c.Loader.PageSize <= 0 || c.Loader.PageSize > c.Loader.MaxPageSize {
		errs = append(errs, fmt.Errorf("loader.page_size must be between 1 and %d", c.Loader.MaxPageSize))
	}
	if c.Chaos.FailureRate < 0 || c.Chaos.FailureRate > 1 {
		errs = append(errs, errors.New("chaos.failure_rate must be between 0 and 1"))
	}
	if c.Chaos.Latency < 0 {
		errs = append(errs, errors.New("chaos.latency must not be negative"))
	}
	return errors.Join(errs...)
}
