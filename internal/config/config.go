// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderConfig holds the upstream weather provider settings.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// CacheConfig holds the document cache settings.
type CacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// DatabaseConfig holds SQLite settings for the lookup history store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// AuthConfig holds admin endpoint authentication settings.
type AuthConfig struct {
	AdminKey string `yaml:"admin_key"` // empty disables the admin endpoints
}

// CORSConfig controls cross-origin access to the public API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	RPM int64 `yaml:"rpm"` // requests per minute per client IP (0 = unlimited)
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// Provider limits mirror the upstream contract: a cache bigger than 1000
// entries or a TTL beyond a day is a configuration mistake, not a tuning knob.
const (
	minCacheSize = 1
	maxCacheSize = 1000
	minCacheTTL  = time.Second
	maxCacheTTL  = 24 * time.Hour
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables
// and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with defaults. The provider API key
// has no default; Validate rejects a config without one.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Provider: ProviderConfig{
			BaseURL:   "https://api.openweathermap.org/data/2.5/weather",
			TimeoutMs: 10_000,
		},
		Cache: CacheConfig{
			MaxSize: 100,
			TTL:     5 * time.Minute,
		},
		Database: DatabaseConfig{
			DSN: "zephyr.db",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RPM: 120,
		},
	}
}

// Validate checks ranges and required fields, trimming the API key.
func (c *Config) Validate() error {
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key must be set")
	}
	if c.Provider.TimeoutMs <= 0 {
		return fmt.Errorf("provider.timeout_ms must be positive, got %d", c.Provider.TimeoutMs)
	}
	if c.Cache.MaxSize < minCacheSize || c.Cache.MaxSize > maxCacheSize {
		return fmt.Errorf("cache.max_size must be in [%d, %d], got %d", minCacheSize, maxCacheSize, c.Cache.MaxSize)
	}
	if c.Cache.TTL < minCacheTTL || c.Cache.TTL > maxCacheTTL {
		return fmt.Errorf("cache.ttl must be in [%s, %s], got %s", minCacheTTL, maxCacheTTL, c.Cache.TTL)
	}
	if c.RateLimit.RPM < 0 {
		return fmt.Errorf("rate_limit.rpm must not be negative, got %d", c.RateLimit.RPM)
	}
	if sr := c.Telemetry.Tracing.SampleRate; sr < 0 || sr > 1 {
		return fmt.Errorf("telemetry.tracing.sample_rate must be in [0, 1], got %v", sr)
	}
	return nil
}
