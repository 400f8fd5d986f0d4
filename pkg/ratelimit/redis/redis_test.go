package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/ratelimit"
)

func setupRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestIncrStartsWindow(t *testing.T) {
	s, mr := setupRedis(t)
	ctx := context.Background()

	n, err := s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(30 * time.Second)
	n, err = s.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	// The second hit must not extend the window.
	assert.Equal(t, 30*time.Second, mr.TTL("k"))

	count, resetAt, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.False(t, resetAt.IsZero())

	mr.FastForward(31 * time.Second)
	count, resetAt, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, resetAt.IsZero())
}

func TestLock(t *testing.T) {
	s, mr := setupRedis(t)
	ctx := context.Background()

	_, locked, err := s.Locked(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, s.SetLock(ctx, "lock", time.Minute))
	_, locked, err = s.Locked(ctx, "lock")
	require.NoError(t, err)
	assert.True(t, locked)

	mr.FastForward(time.Minute)
	_, locked, err = s.Locked(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLimiterOverRedis(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()
	l := ratelimit.New(s, config.RateLimitConfig{Enabled: true, PerMinute: 5, PerHour: 100, PerDay: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.RecordRequest(ctx, "alice"))
		}()
	}
	wg.Wait()

	ok, err := l.CanMakeRequest(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "6th call should be denied")

	rem, err := l.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rem.PerMinute)
	assert.EqualValues(t, 95, rem.PerHour)
}
