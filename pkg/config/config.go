package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/orchestra/pkg/models"
	"gopkg.in/yaml.v3"
)

// Provider dialects understood by pkg/provider.
const (
	ProviderNative   = "native"
	ProviderGemini   = "gemini"
	ProviderDeepSeek = "deepseek"
)

// Config holds all orchestration configuration.
type Config struct {
	DBPath    string                   `yaml:"db_path"`
	Providers []ProviderConfig         `yaml:"providers"`
	Router    RouterConfig             `yaml:"router"`
	Cache     CacheConfig              `yaml:"cache"`
	RateLimit RateLimitConfig          `yaml:"rate_limit"`
	Retry     RetryConfig              `yaml:"retry"`
	Models    []models.ModelDescriptor `yaml:"models"`
	Audit     models.AuditConfig       `yaml:"audit"`
	Log       LogConfig                `yaml:"log"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`
	Redis     RedisConfig              `yaml:"redis"`
}

// ProviderConfig defines an upstream AI backend.
// Type is "native" (default), "gemini" or "deepseek".
type ProviderConfig struct {
	Name              string            `yaml:"name"`
	URL               string            `yaml:"url"`
	APIKey            string            `yaml:"api_key"`
	Type              string            `yaml:"type"`
	Model             string            `yaml:"model"`
	Timeout           time.Duration     `yaml:"timeout"`
	StreamIdleTimeout time.Duration     `yaml:"stream_idle_timeout"`
	MaxResponseBytes  int64             `yaml:"max_response_bytes"` // 0: client default
	Headers           map[string]string `yaml:"headers"`
}

// RouterConfig defines provider fallback chains per operation.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps an operation (or "*") to an ordered list of targets.
type RouteConfig struct {
	Operation string        `yaml:"operation"`
	Targets   []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	// Backend is "memory" (default), "file", "sqlite" or "redis".
	Backend      string                   `yaml:"backend"`
	Dir          string                   `yaml:"dir"`
	OperationTTL map[string]time.Duration `yaml:"operation_ttl"`
}

// RateLimitConfig controls per-caller fixed-window limits. A zero limit
// disables that window.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	PerMinute int64         `yaml:"per_minute"`
	PerHour   int64         `yaml:"per_hour"`
	PerDay    int64         `yaml:"per_day"`
	Cooldown  time.Duration `yaml:"cooldown"`
	// Backend is "memory" (default) or "redis".
	Backend string `yaml:"backend"`
}

// RetryConfig controls provider call retries.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        float64       `yaml:"jitter"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// TelemetryConfig controls Prometheus metrics and OpenTelemetry spans.
type TelemetryConfig struct {
	Metrics   bool   `yaml:"metrics"`
	Tracing   bool   `yaml:"tracing"`
	Namespace string `yaml:"namespace"`
}

// RedisConfig is shared by the redis cache and rate limit backends.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "orchestra.db",
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
			Backend: "memory",
			Dir:     ".orchestra-cache",
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			PerMinute: 60,
			PerHour:   1000,
			PerDay:    10000,
			Cooldown:  time.Minute,
			Backend:   "memory",
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     time.Second,
			MaxDelay:      8 * time.Second,
			BackoffFactor: 2,
		},
		Audit: models.AuditConfig{
			DBPath:         "orchestra-audit.db",
			RetentionDays:  30,
			MaxMessageSize: 2048,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Metrics:   true,
			Namespace: "orchestra",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("provider %q: duplicate name", p.Name)
		}
		names[p.Name] = true
		switch p.Type {
		case "", ProviderNative, ProviderGemini, ProviderDeepSeek:
		default:
			return fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type)
		}
	}
	for _, r := range c.Router.Routes {
		if r.Operation == "" {
			return fmt.Errorf("route: operation is required")
		}
		for _, t := range r.Targets {
			if !names[t.Provider] {
				return fmt.Errorf("route %q: unknown provider %q", r.Operation, t.Provider)
			}
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry: max_attempts must be >= 1")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry: backoff_factor must be >= 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry: max_delay must be >= base_delay")
	}
	switch c.Cache.Backend {
	case "", "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	switch c.RateLimit.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("rate_limit: unknown backend %q", c.RateLimit.Backend)
	}
	if (c.Cache.Backend == "redis" || c.RateLimit.Backend == "redis") && c.Redis.URL == "" {
		return fmt.Errorf("redis: url is required by a redis backend")
	}
	return nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// OperationTTL returns the cache TTL for op, falling back to the default TTL.
func (c *Config) OperationTTL(op string) time.Duration {
	if ttl, ok := c.Cache.OperationTTL[op]; ok && ttl > 0 {
		return ttl
	}
	return c.Cache.TTL
}
