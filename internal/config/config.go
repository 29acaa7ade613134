package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Storage     StorageConfig   `yaml:"storage"`
	Auth        AuthConfig      `yaml:"auth"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Geocoding   GeocodingConfig `yaml:"geocoding"`
	Assets      AssetsConfig    `yaml:"assets"`
	Jobs        JobsConfig      `yaml:"jobs"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

// StorageConfig selects the persistence driver: "postgres" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	JWTIssuer string        `yaml:"jwt_issuer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type GeocodingConfig struct {
	// Provider is "nominatim" or "google".
	Provider        string        `yaml:"provider"`
	NominatimURL    string        `yaml:"nominatim_url"`
	NominatimEmail  string        `yaml:"nominatim_email"`
	GoogleURL       string        `yaml:"google_url"`
	GoogleAPIKey    string        `yaml:"google_api_key"`
	CountryCodes    string        `yaml:"country_codes"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	Timeout         time.Duration `yaml:"timeout"`
	Cache           string        `yaml:"cache"` // postgres, redis or none
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	FailureTTL      time.Duration `yaml:"failure_ttl"`
	RedisAddr       string        `yaml:"redis_addr"`
	PreserveTopHits int           `yaml:"preserve_top_hits"`
}

type AssetsConfig struct {
	// Backend is "local" or "gcs".
	Backend        string `yaml:"backend"`
	LocalDir       string `yaml:"local_dir"`
	GCSBucket      string `yaml:"gcs_bucket"`
	GCSEndpoint    string `yaml:"gcs_endpoint"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// ReleaseMode is "inline" (goroutine) or "queue" (River job).
	ReleaseMode    string        `yaml:"release_mode"`
	ReleaseTimeout time.Duration `yaml:"release_timeout"`
}

type JobsConfig struct {
	Enabled            bool `yaml:"enabled"`
	MaxWorkers         int  `yaml:"max_workers"`
	AssetReleaseMaxTry int  `yaml:"asset_release_max_attempts"`
}

// RateLimitConfig caps requests per client. Zero disables a tier.
type RateLimitConfig struct {
	ReadsPerMinute    int      `yaml:"reads_per_minute"`
	WritesPerMinute   int      `yaml:"writes_per_minute"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Defaults returns the configuration used when neither a file nor the
// environment sets a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
		},
		Storage: StorageConfig{Driver: DriverPostgres},
		Auth: AuthConfig{
			JWTExpiry: time.Hour,
			JWTIssuer: "places",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "places-server",
			SampleRate:  1.0,
		},
		Geocoding: GeocodingConfig{
			Provider:        "nominatim",
			NominatimURL:    "https://nominatim.openstreetmap.org",
			GoogleURL:       "https://maps.googleapis.com",
			RateLimitRPS:    1.0,
			Timeout:         5 * time.Second,
			Cache:           "postgres",
			CacheTTL:        30 * 24 * time.Hour,
			FailureTTL:      7 * 24 * time.Hour,
			PreserveTopHits: 10000,
		},
		Assets: AssetsConfig{
			Backend:        "local",
			LocalDir:       ".",
			MaxUploadBytes: 500 * 1024,
			ReleaseMode:    "inline",
			ReleaseTimeout: 30 * time.Second,
		},
		Jobs: JobsConfig{
			Enabled:            true,
			MaxWorkers:         10,
			AssetReleaseMaxTry: 5,
		},
		RateLimit: RateLimitConfig{
			ReadsPerMinute:  600,
			WritesPerMinute: 60,
		},
		Environment: "development",
	}
}

// Load reads configuration from environment variables on top of defaults.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads a YAML file (when path is non-empty) and applies environment
// variables on top of it. Environment always wins.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", cfg.Storage.Driver))

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpiry = getEnvDuration("JWT_EXPIRY", cfg.Auth.JWTExpiry)
	cfg.Auth.JWTIssuer = getEnv("JWT_ISSUER", cfg.Auth.JWTIssuer)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Geocoding.Provider = strings.ToLower(getEnv("GEOCODING_PROVIDER", cfg.Geocoding.Provider))
	cfg.Geocoding.NominatimURL = getEnv("NOMINATIM_API_URL", cfg.Geocoding.NominatimURL)
	cfg.Geocoding.NominatimEmail = getEnv("NOMINATIM_USER_EMAIL", cfg.Geocoding.NominatimEmail)
	cfg.Geocoding.GoogleURL = getEnv("GOOGLE_GEOCODING_URL", cfg.Geocoding.GoogleURL)
	cfg.Geocoding.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.Geocoding.GoogleAPIKey)
	cfg.Geocoding.CountryCodes = getEnv("GEOCODING_COUNTRY_CODES", cfg.Geocoding.CountryCodes)
	cfg.Geocoding.RateLimitRPS = getEnvFloat("GEOCODING_RATE_LIMIT_RPS", cfg.Geocoding.RateLimitRPS)
	cfg.Geocoding.Timeout = getEnvDuration("GEOCODING_TIMEOUT", cfg.Geocoding.Timeout)
	cfg.Geocoding.Cache = strings.ToLower(getEnv("GEOCODING_CACHE", cfg.Geocoding.Cache))
	cfg.Geocoding.CacheTTL = getEnvDuration("GEOCODING_CACHE_TTL", cfg.Geocoding.CacheTTL)
	cfg.Geocoding.FailureTTL = getEnvDuration("GEOCODING_FAILURE_TTL", cfg.Geocoding.FailureTTL)
	cfg.Geocoding.RedisAddr = getEnv("REDIS_ADDR", cfg.Geocoding.RedisAddr)
	cfg.Geocoding.PreserveTopHits = getEnvInt("GEOCODING_POPULAR_PRESERVE_COUNT", cfg.Geocoding.PreserveTopHits)

	cfg.Assets.Backend = strings.ToLower(getEnv("ASSETS_BACKEND", cfg.Assets.Backend))
	cfg.Assets.LocalDir = getEnv("ASSETS_LOCAL_DIR", cfg.Assets.LocalDir)
	cfg.Assets.GCSBucket = getEnv("ASSETS_GCS_BUCKET", cfg.Assets.GCSBucket)
	cfg.Assets.GCSEndpoint = getEnv("STORAGE_EMULATOR_HOST", cfg.Assets.GCSEndpoint)
	cfg.Assets.MaxUploadBytes = int64(getEnvInt("ASSETS_MAX_UPLOAD_BYTES", int(cfg.Assets.MaxUploadBytes)))
	cfg.Assets.ReleaseMode = strings.ToLower(getEnv("ASSETS_RELEASE_MODE", cfg.Assets.ReleaseMode))
	cfg.Assets.ReleaseTimeout = getEnvDuration("ASSETS_RELEASE_TIMEOUT", cfg.Assets.ReleaseTimeout)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.MaxWorkers = getEnvInt("JOBS_MAX_WORKERS", cfg.Jobs.MaxWorkers)
	cfg.Jobs.AssetReleaseMaxTry = getEnvInt("JOB_RETRY_ASSET_RELEASE", cfg.Jobs.AssetReleaseMaxTry)

	cfg.RateLimit.ReadsPerMinute = getEnvInt("RATE_LIMIT_READS_PER_MINUTE", cfg.RateLimit.ReadsPerMinute)
	cfg.RateLimit.WritesPerMinute = getEnvInt("RATE_LIMIT_WRITES_PER_MINUTE", cfg.RateLimit.WritesPerMinute)
	if cidrs := getEnv("TRUSTED_PROXY_CIDRS", ""); cidrs != "" {
		cfg.RateLimit.TrustedProxyCIDRs = splitList(cidrs)
	}

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}

	switch c.Geocoding.Provider {
	case "nominatim":
	case "google":
		if c.Geocoding.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for the google geocoding provider")
		}
	default:
		return fmt.Errorf("unsupported GEOCODING_PROVIDER %q", c.Geocoding.Provider)
	}

	switch c.Geocoding.Cache {
	case "none":
	case "postgres":
		if c.Storage.Driver != DriverPostgres {
			return fmt.Errorf("GEOCODING_CACHE=postgres requires STORAGE_DRIVER=postgres")
		}
	case "redis":
		if c.Geocoding.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for GEOCODING_CACHE=redis")
		}
	default:
		return fmt.Errorf("unsupported GEOCODING_CACHE %q", c.Geocoding.Cache)
	}

	switch c.Assets.Backend {
	case "local":
	case "gcs":
		if c.Assets.GCSBucket == "" {
			return fmt.Errorf("ASSETS_GCS_BUCKET is required for the gcs asset backend")
		}
	default:
		return fmt.Errorf("unsupported ASSETS_BACKEND %q", c.Assets.Backend)
	}

	switch c.Assets.ReleaseMode {
	case "inline":
	case "queue":
		if c.Storage.Driver != DriverPostgres || !c.Jobs.Enabled {
			return fmt.Errorf("ASSETS_RELEASE_MODE=queue requires the postgres driver with jobs enabled")
		}
	default:
		return fmt.Errorf("unsupported ASSETS_RELEASE_MODE %q", c.Assets.ReleaseMode)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
