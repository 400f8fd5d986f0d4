package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := s.Save(ctx, models.CacheEntry{Key: "id1", Value: []byte(`{"text":"hello"}`), ExpiresAt: exp}); err != nil {
		t.Fatal(err)
	}

	e, err := s.Load(ctx, "id1")
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Value) != `{"text":"hello"}` {
		t.Errorf("unexpected value: %s", e.Value)
	}
	if !e.ExpiresAt.Equal(time.Unix(0, exp.UnixNano())) {
		t.Errorf("unexpected expiry: %v", e.ExpiresAt)
	}

	if _, err := s.Load(ctx, "id2"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := cache.New(newTestStore(t), cache.Options{Enabled: true})
	ctx := context.Background()

	c.Set(ctx, "k", []byte("data"), time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestStats(t *testing.T) {
	c := cache.New(newTestStore(t), cache.Options{Enabled: true})
	ctx := context.Background()

	c.Set(ctx, "h1", []byte("data"), 0)
	c.Get(ctx, "h1") // hit
	c.Get(ctx, "h2") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Total)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Save(ctx, models.CacheEntry{Key: "old", Value: []byte("a"), ExpiresAt: now.Add(-time.Minute)})
	_ = s.Save(ctx, models.CacheEntry{Key: "new", Value: []byte("b"), ExpiresAt: now.Add(time.Minute)})

	n, err := s.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired row, got %d", n)
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	count := 0
	_ = s.Scan(ctx, func(models.CacheEntry) bool { count++; return true })
	if count != 0 {
		t.Errorf("expected 0 entries after purge, got %d", count)
	}
}
