package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.RateLimit.PerMinute != 60 {
		t.Errorf("expected 60 per minute, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BackoffFactor != 2 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
db_path: "test.db"
providers:
  - name: gemini
    type: gemini
    url: https://generativelanguage.example.com
    api_key: ${TEST_API_KEY}
    timeout: 20s
  - name: deepseek
    type: deepseek
    url: https://api.deepseek.example.com
router:
  routes:
    - operation: generate_text
      targets:
        - provider: gemini
        - provider: deepseek
cache:
  enabled: true
  ttl: 30m
  operation_ttl:
    generate_image: 2h
rate_limit:
  per_minute: 5
  cooldown: 10s
retry:
  max_attempts: 6
  base_delay: 1s
  max_delay: 8s
  backoff_factor: 2
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[0].Timeout != 20*time.Second {
		t.Errorf("expected 20s timeout, got %v", cfg.Providers[0].Timeout)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Cache.TTL)
	}
	if got := cfg.OperationTTL("generate_image"); got != 2*time.Hour {
		t.Errorf("expected 2h image TTL, got %v", got)
	}
	if got := cfg.OperationTTL("generate_text"); got != 30*time.Minute {
		t.Errorf("expected fallback TTL, got %v", got)
	}
	if cfg.RateLimit.PerMinute != 5 {
		t.Errorf("expected 5 per minute, got %d", cfg.RateLimit.PerMinute)
	}
	// Untouched keys keep their defaults.
	if cfg.RateLimit.PerHour != 1000 {
		t.Errorf("expected default per hour, got %d", cfg.RateLimit.PerHour)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("expected 6 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if len(cfg.Router.Routes) != 1 || len(cfg.Router.Routes[0].Targets) != 2 {
		t.Fatalf("unexpected routes: %+v", cfg.Router.Routes)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider type", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x", Type: "bogus"}}
		}, "unknown type"},
		{"duplicate provider", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x"}, {Name: "x"}}
		}, "duplicate"},
		{"route to unknown provider", func(c *Config) {
			c.Router.Routes = []RouteConfig{{Operation: "generate_text", Targets: []RouteTarget{{Provider: "nope"}}}}
		}, "unknown provider"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "max_delay"},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }, "redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFromStore(t *testing.T) {
	base := Default()
	base.Providers = []ProviderConfig{{Name: "primary", Type: ProviderNative, URL: "http://localhost"}}

	store := NewMapStore(map[string]any{
		"rate_limit.per_minute":     "5",
		"cache.ttl":                 "15m",
		"cache.enabled":             false,
		"retry.backoff_factor":      3,
		"providers.primary.api_key": "sk-from-store",
	})

	cfg, err := FromStore(store, base)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.PerMinute != 5 {
		t.Errorf("expected 5, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Cache.TTL != 15*time.Minute {
		t.Errorf("expected 15m, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache disabled")
	}
	if cfg.Retry.BackoffFactor != 3 {
		t.Errorf("expected factor 3, got %v", cfg.Retry.BackoffFactor)
	}
	if cfg.Providers[0].APIKey != "sk-from-store" {
		t.Errorf("expected store api key, got %q", cfg.Providers[0].APIKey)
	}
}

func TestFromStoreBadValue(t *testing.T) {
	store := NewMapStore(map[string]any{"cache.ttl": "soon"})
	if _, err := FromStore(store, nil); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestMapStoreSet(t *testing.T) {
	var s MapStore
	if !s.Set("k", 1) {
		t.Fatal("Set should succeed")
	}
	if got := s.Get("k", 0); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if got := s.Get("missing", "def"); got != "def" {
		t.Errorf("expected default, got %v", got)
	}
}
