// Package memory is an in-process cache.Store split into independently
// locked shards.
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 16

type shard struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// Store keeps entries in memory. The zero value is not usable; call New.
type Store struct {
	shards []*shard
}

// New creates a Store with the given number of shards.
func New(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Store{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]models.CacheEntry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) Load(_ context.Context, id string) (models.CacheEntry, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	return e, nil
}

func (s *Store) Save(_ context.Context, entry models.CacheEntry) error {
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	entry.Value = value

	sh := s.shardFor(entry.Key)
	sh.mu.Lock()
	sh.entries[entry.Key] = entry
	sh.mu.Unlock()
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	delete(sh.entries, id)
	sh.mu.Unlock()
	return nil
}

func (s *Store) Purge(_ context.Context) error {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]models.CacheEntry)
		sh.mu.Unlock()
	}
	return nil
}

// Scan visits a snapshot of each shard, so fn may call back into the store.
func (s *Store) Scan(ctx context.Context, fn func(models.CacheEntry) bool) error {
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		sh.mu.RLock()
		snapshot := make([]models.CacheEntry, 0, len(sh.entries))
		for _, e := range sh.entries {
			snapshot = append(snapshot, e)
		}
		sh.mu.RUnlock()

		for _, e := range snapshot {
			if !fn(e) {
				return nil
			}
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

var _ cache.Store = (*Store)(nil)
