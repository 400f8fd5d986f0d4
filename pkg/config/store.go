package config

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Store is the host application's opaque settings store. The orchestration
// core only reads from it; persistence is the host's concern.
type Store interface {
	// Get returns the value stored under key, or def when absent.
	Get(key string, def any) any
	// Set stores value under key and reports success.
	Set(key string, value any) bool
}

// MapStore is an in-memory Store safe for concurrent use.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapStore returns a MapStore seeded with values.
func NewMapStore(values map[string]any) *MapStore {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = v
	}
	return &MapStore{values: m}
}

func (s *MapStore) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

func (s *MapStore) Set(key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
	return true
}

// FromStore overlays settings found in s onto base (Default() when nil).
// Recognised keys use the dotted YAML path, for example "rate_limit.per_minute"
// or "cache.ttl". Unparseable values are reported as errors rather than
// silently ignored.
func FromStore(s Store, base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = Default()
	}
	r := reader{store: s}

	cfg.Cache.Enabled = r.bool("cache.enabled", cfg.Cache.Enabled)
	cfg.Cache.TTL = r.duration("cache.ttl", cfg.Cache.TTL)
	cfg.Cache.Backend = r.string("cache.backend", cfg.Cache.Backend)
	cfg.Cache.Dir = r.string("cache.dir", cfg.Cache.Dir)

	cfg.RateLimit.Enabled = r.bool("rate_limit.enabled", cfg.RateLimit.Enabled)
	cfg.RateLimit.PerMinute = r.int64("rate_limit.per_minute", cfg.RateLimit.PerMinute)
	cfg.RateLimit.PerHour = r.int64("rate_limit.per_hour", cfg.RateLimit.PerHour)
	cfg.RateLimit.PerDay = r.int64("rate_limit.per_day", cfg.RateLimit.PerDay)
	cfg.RateLimit.Cooldown = r.duration("rate_limit.cooldown", cfg.RateLimit.Cooldown)

	cfg.Retry.MaxAttempts = int(r.int64("retry.max_attempts", int64(cfg.Retry.MaxAttempts)))
	cfg.Retry.BaseDelay = r.duration("retry.base_delay", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = r.duration("retry.max_delay", cfg.Retry.MaxDelay)
	cfg.Retry.BackoffFactor = r.float("retry.backoff_factor", cfg.Retry.BackoffFactor)

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		prefix := "providers." + p.Name + "."
		p.APIKey = r.string(prefix+"api_key", p.APIKey)
		p.URL = r.string(prefix+"url", p.URL)
		p.Model = r.string(prefix+"model", p.Model)
		p.Timeout = r.duration(prefix+"timeout", p.Timeout)
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reader converts loosely typed store values, remembering the first error.
type reader struct {
	store Store
	err   error
}

func (r *reader) fail(key string, v any) {
	if r.err == nil {
		r.err = fmt.Errorf("config store: key %q: cannot use %v (%T)", key, v, v)
	}
}

func (r *reader) string(key, def string) string {
	switch v := r.store.Get(key, def).(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		r.fail(key, v)
		return def
	}
}

func (r *reader) bool(key string, def bool) bool {
	switch v := r.store.Get(key, def).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, v)
			return def
		}
		return b
	default:
		r.fail(key, v)
		return def
	}
}

func (r *reader) int64(key string, def int64) int64 {
	switch v := r.store.Get(key, def).(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(key, v)
			return def
		}
		return n
	default:
		r.fail(key, v)
		return def
	}
}

func (r *reader) float(key string, def float64) float64 {
	switch v := r.store.Get(key, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v)
			return def
		}
		return f
	default:
		r.fail(key, v)
		return def
	}
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	switch v := r.store.Get(key, def).(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, v)
			return def
		}
		return d
	default:
		r.fail(key, v)
		return def
	}
}
