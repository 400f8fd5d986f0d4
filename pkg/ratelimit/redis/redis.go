// Package redis is a ratelimit.Store shared across processes through Redis.
// Window counters use INCR with an expiry set on the first hit of each
// window; cooldown locks are plain keys with a PX expiry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pario-ai/orchestra/pkg/ratelimit"
)

// Store implements ratelimit.Store.
type Store struct {
	client redis.Cmdable
	now    func() time.Time
}

// New wraps client.
func New(client redis.Cmdable) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	// A key without expiry was created by this INCR, or lost its expiry;
	// either way the window starts now.
	if ttl.Val() < 0 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("redis pexpire: %w", err)
		}
	}
	return incr.Val(), nil
}

func (s *Store) Get(ctx context.Context, key string) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	count, err := get.Int64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}
	var resetAt time.Time
	if d := ttl.Val(); d > 0 {
		resetAt = s.now().Add(d)
	}
	return count, resetAt, nil
}

func (s *Store) SetLock(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set lock: %w", err)
	}
	return nil
}

func (s *Store) Locked(ctx context.Context, key string) (time.Time, bool, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis pttl: %w", err)
	}
	if d <= 0 {
		return time.Time{}, false, nil
	}
	return s.now().Add(d), true, nil
}

var _ ratelimit.Store = (*Store)(nil)
