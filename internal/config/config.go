package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryCacheAddr as cache_redis.addr selects the in-process response cache.
const MemoryCacheAddr = "memory"

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// PostgresConfig holds the entry database settings. An empty DSN disables
// the entry endpoints.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// CacheConfig holds response cache settings. TTLs are in seconds.
type CacheConfig struct {
	DefaultTTL   int            `json:"default_ttl" yaml:"default_ttl"`
	TTL          map[string]int `json:"ttl" yaml:"ttl"`
	SingleFlight bool           `json:"single_flight" yaml:"single_flight"`
	Invalidation bool           `json:"invalidation" yaml:"invalidation"`
	Breaker      BreakerConfig  `json:"breaker" yaml:"breaker"`
}

// BreakerConfig holds the circuit breaker in front of the cache Redis.
type BreakerConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ErrorPct    float64 `json:"error_pct" yaml:"error_pct"`
	Window      int     `json:"window" yaml:"window"` // seconds
	OpenFor     int     `json:"open_for" yaml:"open_for"`
	MinRequests int     `json:"min_requests" yaml:"min_requests"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	AccessLog string `json:"access_log" yaml:"access_log"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Exporter   string  `json:"exporter" yaml:"exporter"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}

// Config is the central configuration struct
type Config struct {
	Server     ServerConfig   `json:"server" yaml:"server"`
	DataRedis  RedisConfig    `json:"data_redis" yaml:"data_redis"`
	CacheRedis RedisConfig    `json:"cache_redis" yaml:"cache_redis"`
	Postgres   PostgresConfig `json:"postgres" yaml:"postgres"`
	Cache      CacheConfig    `json:"cache" yaml:"cache"`
	Tracing    TracingConfig  `json:"tracing" yaml:"tracing"`
	Metrics    MetricsConfig  `json:"metrics" yaml:"metrics"`
	// Season like "2526". Empty means derive it from the current date.
	Season string `json:"season" yaml:"season"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
		DataRedis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		CacheRedis: RedisConfig{
			Addr: "localhost:6380",
			DB:   0,
		},
		Cache: CacheConfig{
			DefaultTTL:   3600,
			TTL:          map[string]int{},
			Invalidation: true,
			Breaker: BreakerConfig{
				Enabled:     true,
				ErrorPct:    50,
				Window:      10,
				OpenFor:     5,
				MinRequests: 20,
			},
		},
		Tracing: TracingConfig{
			Exporter:   "otlp-http",
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Namespace: "letletme",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
// LETLETME_CACHE_TTL_<SERVICE> overrides a single service TTL.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LETLETME_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LETLETME_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("LETLETME_LOG_FORMAT"); v != "" {
		cfg.Server.LogFormat = v
	}
	if v := os.Getenv("LETLETME_DATA_REDIS_ADDR"); v != "" {
		cfg.DataRedis.Addr = v
	}
	if v := os.Getenv("LETLETME_DATA_REDIS_PASSWORD"); v != "" {
		cfg.DataRedis.Password = v
	}
	if v := os.Getenv("LETLETME_CACHE_REDIS_ADDR"); v != "" {
		cfg.CacheRedis.Addr = v
	}
	if v := os.Getenv("LETLETME_CACHE_REDIS_PASSWORD"); v != "" {
		cfg.CacheRedis.Password = v
	}
	if v := os.Getenv("LETLETME_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("LETLETME_SEASON"); v != "" {
		cfg.Season = v
	}
	if v := os.Getenv("LETLETME_CACHE_DEFAULT_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DefaultTTL = n
		}
	}
	if v := os.Getenv("LETLETME_CACHE_BREAKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Breaker.Enabled = b
		}
	}
	if v := os.Getenv("LETLETME_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}

	const ttlPrefix = "LETLETME_CACHE_TTL_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, ttlPrefix) {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		if cfg.Cache.TTL == nil {
			cfg.Cache.TTL = map[string]int{}
		}
		cfg.Cache.TTL[strings.ToLower(strings.TrimPrefix(name, ttlPrefix))] = n
	}
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.DataRedis.Addr == "" {
		return fmt.Errorf("data_redis.addr is required")
	}
	if c.CacheRedis.Addr == "" {
		return fmt.Errorf("cache_redis.addr is required")
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive, got %d", c.Cache.DefaultTTL)
	}
	if b := c.Cache.Breaker; b.Enabled && (b.ErrorPct <= 0 || b.ErrorPct > 100 || b.Window <= 0 || b.OpenFor <= 0) {
		return fmt.Errorf("cache.breaker needs error_pct in (0,100] and positive window and open_for")
	}
	for name, ttl := range c.Cache.TTL {
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl.%s must be positive, got %d", name, ttl)
		}
	}
	return nil
}

// TTLOverrides returns the per-service overrides as durations keyed by
// lower-cased service name.
func (c *Config) TTLOverrides() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Cache.TTL))
	for name, secs := range c.Cache.TTL {
		out[strings.ToLower(name)] = time.Duration(secs) * time.Second
	}
	return out
}
