package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := time.Unix(1_800_000_000, 42)

	if err := s.Save(ctx, models.CacheEntry{Key: "abc", Value: []byte("line1\nline2"), ExpiresAt: exp}); err != nil {
		t.Fatal(err)
	}
	e, err := s.Load(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Value) != "line1\nline2" || !e.ExpiresAt.Equal(exp) {
		t.Errorf("unexpected entry: %+v", e)
	}

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path("bad"), []byte("not-a-number\nxx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(context.Background(), "bad"); !errors.Is(err, cache.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestExpiredFileRemovedOnRead(t *testing.T) {
	s := newTestStore(t)
	c := cache.New(s, cache.Options{Enabled: true})
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit immediately after Set")
	}

	time.Sleep(1100 * time.Millisecond)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after TTL")
	}
	if _, err := os.Stat(s.Path(cache.StorageID("k"))); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
}

func TestCleanSweepsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	c := cache.New(s, cache.Options{Enabled: true})
	ctx := context.Background()

	c.Set(ctx, "live", []byte("v"), time.Hour)
	if err := os.WriteFile(s.Path("junk"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.dir+"/notes.txt", []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := c.Clean(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if !c.Exists(ctx, "live") {
		t.Error("live entry should survive clean")
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	stats, _ := c.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("expected empty store, got %d", stats.Total)
	}
}

func TestSweepRemovesStaleTempFiles(t *testing.T) {
	s := newTestStore(t)
	c := cache.New(s, cache.Options{Enabled: true})
	ctx := context.Background()

	c.Set(ctx, "live", []byte("v"), time.Hour)
	stale := filepath.Join(s.dir, "tmp-111")
	fresh := filepath.Join(s.dir, "tmp-222")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * staleTemp)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	n, err := c.Clean(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("temp files should not count as entries, got %d", n)
	}
	if _, err := os.Stat(stale); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected stale temp file removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh temp file may belong to an in-flight save: %v", err)
	}
	if !c.Exists(ctx, "live") {
		t.Error("live entry should survive clean")
	}
}

func TestPurgeRemovesUnreadableFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, models.CacheEntry{Key: "a", Value: []byte("v"), ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	locked := s.Path("locked")
	if err := os.WriteFile(locked, []byte("x"), 0o000); err != nil {
		t.Fatal(err)
	}
	tmp := filepath.Join(s.dir, "tmp-333")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	left, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("expected empty dir after purge, got %d files", len(left))
	}
}
