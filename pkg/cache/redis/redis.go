// Package redis is a cache.Store backed by Redis. Entries expire natively via
// PX and also carry their expiry so the cache can report it.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "orchestra:cache:"

const scanBatch = 100

// Dial parses url, connects and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Store keeps entries under prefix+id.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Load(ctx context.Context, id string) (models.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("redis get: %w", err)
	}
	return decode(id, data)
}

func (s *Store) Save(ctx context.Context, entry models.CacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return s.Remove(ctx, entry.Key)
	}
	buf := make([]byte, 8+len(entry.Value))
	binary.BigEndian.PutUint64(buf, uint64(entry.ExpiresAt.UnixNano()))
	copy(buf[8:], entry.Value)

	if err := s.client.Set(ctx, s.prefix+entry.Key, buf, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context) error {
	return s.scanKeys(ctx, func(keys []string) (bool, error) {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return false, fmt.Errorf("redis del: %w", err)
		}
		return true, nil
	})
}

func (s *Store) Scan(ctx context.Context, fn func(models.CacheEntry) bool) error {
	return s.scanKeys(ctx, func(keys []string) (bool, error) {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return false, fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			id := keys[i][len(s.prefix):]
			entry, err := decode(id, []byte(str))
			if err != nil {
				entry = models.CacheEntry{Key: id, Value: []byte(str)}
			}
			if !fn(entry) {
				return false, nil
			}
		}
		return true, nil
	})
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scanKeys(ctx context.Context, fn func(keys []string) (bool, error)) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			more, err := fn(keys)
			if err != nil || !more {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func decode(id string, data []byte) (models.CacheEntry, error) {
	if len(data) < 8 {
		return models.CacheEntry{}, fmt.Errorf("%w: short redis value", cache.ErrCorrupt)
	}
	nanos := int64(binary.BigEndian.Uint64(data[:8]))
	return models.CacheEntry{Key: id, Value: data[8:], ExpiresAt: time.Unix(0, nanos)}, nil
}

var _ cache.Store = (*Store)(nil)
