// Package cache implements the content-addressed result cache. Values are
// stored through a pluggable Store under a fixed-length storage id derived
// from the caller's semantic key; reads never fail, they miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/models"
)

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound = errors.New("cache: entry not found")
	ErrCorrupt  = errors.New("cache: entry is corrupt")
)

// Store persists sealed cache entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Load returns ErrNotFound for absent ids and ErrCorrupt for unreadable
//   entries; it does not check expiry.
// - Writers to the same id race; last write wins.
type Store interface {
	Load(ctx context.Context, id string) (models.CacheEntry, error)
	Save(ctx context.Context, entry models.CacheEntry) error
	Remove(ctx context.Context, id string) error
	Purge(ctx context.Context) error
	// Scan calls fn for every stored entry until fn returns false.
	Scan(ctx context.Context, fn func(models.CacheEntry) bool) error
	Close() error
}

// Observer is notified of cache events. telemetry.Metrics implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheExpired()
}

type nopObserver struct{}

func (nopObserver) CacheHit()     {}
func (nopObserver) CacheMiss()    {}
func (nopObserver) CacheExpired() {}

// Options configures a Cache.
type Options struct {
	Enabled  bool
	TTL      time.Duration
	Logger   logging.Sink
	Observer Observer
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is the ResultCache. It is safe for concurrent use.
type Cache struct {
	store    Store
	ttl      time.Duration
	enabled  atomic.Bool
	hits     atomic.Int64
	misses   atomic.Int64
	log      logging.Sink
	observer Observer
	now      func() time.Time
}

// DefaultTTL is used when neither Options.TTL nor a per-call TTL is set.
const DefaultTTL = time.Hour

// New creates a Cache over store.
func New(store Store, opts Options) *Cache {
	c := &Cache{
		store:    store,
		ttl:      opts.TTL,
		log:      logging.OrNop(opts.Logger),
		observer: opts.Observer,
		now:      opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.enabled.Store(opts.Enabled)
	return c
}

// StorageID maps a semantic key to the fixed-length id used by stores.
func StorageID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SetEnabled toggles passthrough mode at runtime.
func (c *Cache) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool { return c.enabled.Load() }

// TTL returns the default TTL.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the value stored under key. Disabled caches, missing, expired
// and corrupt entries all miss; expired and corrupt entries are deleted.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	id := StorageID(key)

	entry, err := c.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.warn("cache read failed, dropping entry", id, err)
			c.remove(ctx, id)
		}
		c.miss()
		return nil, false
	}

	if entry.Expired(c.now()) {
		c.remove(ctx, id)
		c.observer.CacheExpired()
		c.miss()
		return nil, false
	}

	value, err := unseal(entry.Value)
	if err != nil {
		c.warn("cache entry corrupt, dropping entry", id, err)
		c.remove(ctx, id)
		c.miss()
		return nil, false
	}

	c.hits.Add(1)
	c.observer.CacheHit()
	return value, true
}

// Set stores value under key for ttl (the default TTL when ttl <= 0). It
// reports whether the value was stored; failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry := models.CacheEntry{
		Key:       StorageID(key),
		Value:     seal(value),
		ExpiresAt: c.now().Add(ttl),
	}
	if err := c.store.Save(ctx, entry); err != nil {
		c.warn("cache write failed", entry.Key, err)
		return false
	}
	return true
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.remove(ctx, StorageID(key))
}

// Exists reports whether a live entry is stored under key. It does not count
// as a hit or miss.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	entry, err := c.store.Load(ctx, StorageID(key))
	if err != nil {
		return false
	}
	return !entry.Expired(c.now())
}

// Flush removes every entry.
func (c *Cache) Flush(ctx context.Context) error {
	return c.store.Purge(ctx)
}

// expirer is implemented by stores that can drop expired entries natively.
type expirer interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Clean sweeps expired entries and returns how many were removed.
func (c *Cache) Clean(ctx context.Context) (int, error) {
	now := c.now()
	if e, ok := c.store.(expirer); ok {
		n, err := e.PurgeExpired(ctx, now)
		for i := int64(0); i < n; i++ {
			c.observer.CacheExpired()
		}
		return int(n), err
	}
	var expired []string
	err := c.store.Scan(ctx, func(e models.CacheEntry) bool {
		if e.Expired(now) {
			expired = append(expired, e.Key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range expired {
		if err := c.store.Remove(ctx, id); err != nil {
			return removed, err
		}
		removed++
		c.observer.CacheExpired()
	}
	return removed, nil
}

// Stats reports entry counts and hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	stats := models.CacheStats{
		Enabled: c.Enabled(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	now := c.now()
	err := c.store.Scan(ctx, func(e models.CacheEntry) bool {
		stats.Total++
		stats.Size += int64(len(e.Value))
		if e.Expired(now) {
			stats.Expired++
		}
		return true
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) miss() {
	c.misses.Add(1)
	c.observer.CacheMiss()
}

func (c *Cache) remove(ctx context.Context, id string) {
	if err := c.store.Remove(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		c.warn("cache delete failed", id, err)
	}
}

func (c *Cache) warn(msg, id string, err error) {
	c.log.Log(logging.LevelWarn, msg, logging.Fields{"cache_id": id, "error": err})
}
