package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

// DefaultPath is where Load looks for the YAML configuration.
const DefaultPath = "config.yaml"

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Geocoding provider selection.
const (
	GeocodingAuto   = "auto"
	GeocodingGoogle = "google"
	GeocodingLocal  = "local"
)

// Config holds all configuration for nemaec-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Import    ImportConfig    `yaml:"import"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "memory". The memory driver loses data on restart.
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"nemaec"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"nemaec"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	AutoMigrate    bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE" env-default:"true"`
}

// RedisConfig holds the optional Redis connection. An empty host disables
// Redis: geocoding falls back to an in-process cache and notifications are
// only logged.
type RedisConfig struct {
	Host          string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port          int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password      string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB            int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	NotifyChannel string `yaml:"notify_channel" env:"REDIS_NOTIFY_CHANNEL" env-default:"nemaec:notifications"`
	CachePrefix   string `yaml:"cache_prefix" env:"REDIS_CACHE_PREFIX" env-default:"nemaec:geocoding:"`
}

// GeocodingConfig configures place lookup.
type GeocodingConfig struct {
	// Provider is "auto" (Google when a key is set, local otherwise), "google" or "local".
	Provider          string        `yaml:"provider" env:"GEOCODING_PROVIDER" env-default:"auto" validate:"oneof=auto google local"`
	APIKey            string        `yaml:"-" env:"GOOGLE_MAPS_API_KEY"` // Secret - not in YAML
	BaseURL           string        `yaml:"base_url" env:"GOOGLE_MAPS_BASE_URL" env-default:"https://maps.googleapis.com/maps/api/place"`
	Region            string        `yaml:"region" env:"GOOGLE_MAPS_REGION" env-default:"pe"`
	Language          string        `yaml:"language" env:"GOOGLE_MAPS_LANGUAGE" env-default:"es"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"GOOGLE_MAPS_RPS" env-default:"5" validate:"gt=0"`
	Timeout           time.Duration `yaml:"timeout" env:"GOOGLE_MAPS_TIMEOUT" env-default:"10s"`
	CacheTTL          time.Duration `yaml:"cache_ttl" env:"GEOCODING_CACHE_TTL" env-default:"24h"`
	CacheSize         int           `yaml:"cache_size" env:"GEOCODING_CACHE_SIZE" env-default:"512" validate:"gt=0"`
}

// ImportConfig tunes schedule ingestion and comparison.
type ImportConfig struct {
	MaxUploadBytes    int64  `yaml:"max_upload_bytes" env:"IMPORT_MAX_UPLOAD_BYTES" env-default:"10485760" validate:"gt=0"`
	PreviewRows       int    `yaml:"preview_rows" env:"IMPORT_PREVIEW_ROWS" env-default:"10" validate:"gt=0"`
	ErrorDisplayLimit int    `yaml:"error_display_limit" env:"IMPORT_ERROR_DISPLAY_LIMIT" env-default:"10" validate:"gt=0"`
	TemplatePath      string `yaml:"template_path" env:"IMPORT_TEMPLATE_PATH" env-default:""`
	// BalanceTolerance is a decimal string; "0" enforces the exact lump-sum rule.
	BalanceTolerance string `yaml:"balance_tolerance" env:"IMPORT_BALANCE_TOLERANCE" env-default:"0"`
	// RollupMaxDepth limits parent roll-up to shallow codes. 0 rolls up every parent.
	RollupMaxDepth int `yaml:"rollup_max_depth" env:"IMPORT_ROLLUP_MAX_DEPTH" env-default:"0" validate:"gte=0"`
}

// Tolerance parses BalanceTolerance.
func (c *ImportConfig) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.BalanceTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance_tolerance %q: %w", c.BalanceTolerance, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("balance_tolerance %q must not be negative", c.BalanceTolerance)
	}
	return d, nil
}

var configValidate = validator.New()

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file at the default path is not an error: the environment alone
// is used. A missing file at an explicit path is.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist) && path == DefaultPath:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForContainer(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForContainer(cfg.Redis.Host)

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := configValidate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Import.Tolerance(); err != nil {
		return err
	}
	if c.Geocoding.Provider == GeocodingGoogle && c.Geocoding.APIKey == "" {
		return fmt.Errorf("geocoding provider %q requires GOOGLE_MAPS_API_KEY", GeocodingGoogle)
	}
	return nil
}

// IsLocal reports whether the server runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection as a postgres:// URL, the form golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
