package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv              string
	Port                string
	CommerceAPIURL      string
	CommerceTimeout     time.Duration
	CommerceMaxAttempts int
	EncryptionKey       string
	CartVariant         string
	CheckoutSubmit      string

	StorageBackend string
	StorageDir     string
	StorageTTL     time.Duration
	RedisURL       string
	DatabaseURL    string

	CORSAllowedOrigins  []string
	CatalogCacheTTL     time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	RateLimitPerMinute  int
	BodyLimitBytes      int64
	SessionCookieSecure bool

	Obs ObsConfig
}

// ObsConfig configures logging, metrics and tracing.
type ObsConfig struct {
	LogFormat             string
	LogLevel              string
	MetricsNamespace      string
	EnablePrometheus      bool
	EnableTracing         bool
	OTLPEndpoint          string
	TracingSamplingRatio  float64
	HTTPDurationBucketsMs string
	EnablePprof           bool
	PprofUser             string
	PprofPass             string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              strings.ToLower(valueOrDefault(k.String("APP_ENV"), "development")),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		CommerceAPIURL:      strings.TrimSpace(k.String("COMMERCE_API_URL")),
		CommerceTimeout:     parseDuration(k.String("COMMERCE_TIMEOUT"), "10s"),
		CommerceMaxAttempts: parseInt(k.String("COMMERCE_MAX_ATTEMPTS"), 3),
		EncryptionKey:       k.String("ENCRYPTION_KEY"),
		CartVariant:         strings.ToLower(valueOrDefault(k.String("CART_VARIANT"), "sale")),
		CheckoutSubmit:      strings.ToLower(valueOrDefault(k.String("CHECKOUT_SUBMIT"), "log")),
		StorageBackend:      strings.ToLower(valueOrDefault(k.String("STORAGE_BACKEND"), "memory")),
		StorageDir:          valueOrDefault(k.String("STORAGE_DIR"), "./data/storefront"),
		StorageTTL:          parseDuration(k.String("STORAGE_TTL"), "0s"),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 10),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		RateLimitPerMinute:  parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		BodyLimitBytes:      int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SessionCookieSecure: parseBool(k.String("SESSION_COOKIE_SECURE")),
		Obs: ObsConfig{
			LogFormat:             valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:              valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace:      valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
			EnablePrometheus:      parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:         parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:          strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSamplingRatio:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			HTTPDurationBucketsMs: k.String("OBS_HTTP_DURATION_BUCKETS_MS"),
			EnablePprof:           parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:             strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:             strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.CommerceAPIURL == "" {
		errs = append(errs, errors.New("COMMERCE_API_URL is required"))
	}
	if strings.TrimSpace(c.EncryptionKey) == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("ENCRYPTION_KEY is required outside development"))
	}
	switch c.StorageBackend {
	case "memory", "file":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis storage backend"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q is not supported", c.StorageBackend))
	}
	switch c.CartVariant {
	case "sale", "cart":
	default:
		errs = append(errs, fmt.Errorf("CART_VARIANT %q is not supported", c.CartVariant))
	}
	switch c.CheckoutSubmit {
	case "log", "remote":
	default:
		errs = append(errs, fmt.Errorf("CHECKOUT_SUBMIT %q is not supported", c.CheckoutSubmit))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

// Secret returns the storage encryption secret. Development builds without
// ENCRYPTION_KEY fall back to a fixed, clearly insecure value.
func (c *Config) Secret() string {
	if key := strings.TrimSpace(c.EncryptionKey); key != "" {
		return key
	}
	return "toko-storefront-development-only"
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d < 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests overrides environment variables for the duration of Load.
// An empty value unsets the variable.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
