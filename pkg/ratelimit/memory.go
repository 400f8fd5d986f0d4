package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
	// dead marks a bucket removed by a sweep; holders must look it up again.
	dead bool
}

// sweepInterval is how often, in store time, elapsed buckets and expired
// locks are evicted.
const sweepInterval = time.Minute

// MemoryStore is an in-process Store. Each key has its own mutex, so
// increments of different windows never contend. Elapsed windows and expired
// locks are swept at most once per sweepInterval, from Incr and SetLock.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	locks     map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore returns an empty store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		locks:   make(map[string]time.Time),
		now:     now,
	}
}

func (s *MemoryStore) bucket(key string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweep()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	var b *bucket
	for {
		b = s.bucket(key)
		b.mu.Lock()
		if !b.dead {
			break
		}
		b.mu.Unlock()
	}
	defer b.mu.Unlock()

	now := s.now()
	if !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}
	b.count++
	return b.count, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	b, ok := s.buckets[key]
	s.mu.Unlock()
	if !ok {
		return 0, time.Time{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !s.now().Before(b.resetAt) {
		return 0, time.Time{}, nil
	}
	return b.count, b.resetAt, nil
}

func (s *MemoryStore) SetLock(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	s.maybeSweep()
	s.locks[key] = s.now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Locked(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.locks[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if !s.now().Before(exp) {
		delete(s.locks, key)
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

// maybeSweep evicts elapsed buckets and expired locks. s.mu must be held.
func (s *MemoryStore) maybeSweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, b := range s.buckets {
		b.mu.Lock()
		if !now.Before(b.resetAt) {
			b.dead = true
			delete(s.buckets, key)
		}
		b.mu.Unlock()
	}
	for key, exp := range s.locks {
		if !now.Before(exp) {
			delete(s.locks, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
