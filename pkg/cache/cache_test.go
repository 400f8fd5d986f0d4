package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/cache/memory"
	"github.com/pario-ai/orchestra/pkg/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	hits, misses, expired int
}

func (o *countingObserver) CacheHit()     { o.hits++ }
func (o *countingObserver) CacheMiss()    { o.misses++ }
func (o *countingObserver) CacheExpired() { o.expired++ }

func newTestCache(t *testing.T) (*cache.Cache, *memory.Store, *clock) {
	t.Helper()
	store := memory.New(4)
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := cache.New(store, cache.Options{Enabled: true, TTL: time.Hour, Now: clk.Now})
	t.Cleanup(func() { _ = c.Close() })
	return c, store, clk
}

func TestSetAndGet(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	if !c.Set(ctx, "generate_text:abc", []byte(`{"text":"hello"}`), 0) {
		t.Fatal("expected Set to succeed")
	}
	got, ok := c.Get(ctx, "generate_text:abc")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != `{"text":"hello"}` {
		t.Errorf("unexpected value: %s", got)
	}

	if _, ok := c.Get(ctx, "generate_text:other"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestExpiry(t *testing.T) {
	c, store, clk := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clk.Advance(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss at expiry")
	}
	if _, err := store.Load(ctx, cache.StorageID("k")); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expired entry should be removed on read, got %v", err)
	}
}

func TestDisabledPassthrough(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	c.SetEnabled(false)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("disabled cache must miss")
	}
	if c.Set(ctx, "k2", []byte("v"), 0) {
		t.Error("disabled cache must not store")
	}

	c.SetEnabled(true)
	if _, ok := c.Get(ctx, "k2"); ok {
		t.Error("value written while disabled should not exist")
	}
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("value written before disabling should survive")
	}
}

func TestCorruptEntryDropped(t *testing.T) {
	c, store, clk := newTestCache(t)
	ctx := context.Background()

	id := cache.StorageID("k")
	err := store.Save(ctx, models.CacheEntry{Key: id, Value: []byte("garbage"), ExpiresAt: clk.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("corrupt entry must miss")
	}
	if _, err := store.Load(ctx, id); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("corrupt entry should be removed, got %v", err)
	}
}

func TestCleanAndStats(t *testing.T) {
	store := memory.New(2)
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	obs := &countingObserver{}
	c := cache.New(store, cache.Options{Enabled: true, Now: clk.Now, Observer: obs})
	ctx := context.Background()

	c.Set(ctx, "short", []byte("a"), time.Minute)
	c.Set(ctx, "long", []byte("bb"), 2*time.Hour)
	c.Get(ctx, "long")    // hit
	c.Get(ctx, "missing") // miss

	clk.Advance(time.Hour)

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Expired != 1 {
		t.Errorf("expected 2 total / 1 expired, got %+v", stats)
	}
	if stats.Hits != 1 || stats.Misses != 1 || !stats.Enabled {
		t.Errorf("unexpected counters: %+v", stats)
	}

	n, err := c.Clean(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept entry, got %d", n)
	}
	if obs.hits != 1 || obs.misses != 1 || obs.expired != 1 {
		t.Errorf("unexpected observer counts: %+v", obs)
	}

	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	stats, _ = c.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("expected empty cache after flush, got %d", stats.Total)
	}
}

func TestExistsAndDelete(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	if !c.Exists(ctx, "k") {
		t.Fatal("expected key to exist")
	}
	c.Delete(ctx, "k")
	c.Delete(ctx, "k")
	if c.Exists(ctx, "k") {
		t.Error("expected key to be gone")
	}
}

func TestKey(t *testing.T) {
	params1 := map[string]any{"temperature": 0.7, "max_tokens": 100, "nested": map[string]any{"b": 1, "a": 2}}
	params2 := map[string]any{"nested": map[string]any{"a": 2, "b": 1}, "max_tokens": 100, "temperature": 0.7}

	k1, err := cache.Key("generate_text", "hello   world", params1)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := cache.Key("generate_text", " hello world ", params2)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("keys should match: %s != %s", k1, k2)
	}

	k3, _ := cache.Key("generate_text", "hello world", map[string]any{"temperature": 0.8, "max_tokens": 100})
	if k1 == k3 {
		t.Error("different params should produce different keys")
	}
	k4, _ := cache.Key("analyze_content", "hello world", params1)
	if k1 == k4 {
		t.Error("different operations should produce different keys")
	}

	if _, err := cache.Key("x", func() {}, nil); err == nil {
		t.Error("expected error for unencodable input")
	}
}

func TestContentHash(t *testing.T) {
	if cache.ContentHash("metrics", "a") == cache.ContentHash("metrics", "b") {
		t.Error("different content should hash differently")
	}
	if cache.ContentHash("metrics", "a") != cache.ContentHash("metrics", "a") {
		t.Error("hash should be stable")
	}
}
