// Package ratelimit enforces per-identity request quotas over fixed minute,
// hour and day windows, plus a timed cooldown lock for throttled callers.
//
// Windows are fixed, not sliding: a caller can spend a full window's quota at
// the end of one window and again at the start of the next.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/models"
)

// Store holds window counters and cooldown locks.
//
// Incr must be atomic per key: concurrent increments of one key are never
// lost. A counter whose window has elapsed reads as zero and restarts at the
// next Incr.
type Store interface {
	// Incr adds one to key, starting a new window of the given length when
	// none is active, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Get returns the live count for key and when its window resets. An
	// absent or elapsed key returns 0 and a zero time.
	Get(ctx context.Context, key string) (int64, time.Time, error)
	// SetLock creates or replaces a lock that expires after ttl.
	SetLock(ctx context.Context, key string, ttl time.Duration) error
	// Locked reports whether key holds an unexpired lock and when it expires.
	Locked(ctx context.Context, key string) (time.Time, bool, error)
}

// DefaultCooldown applies when the configured cooldown is not positive.
const DefaultCooldown = time.Minute

// Limiter is the RateLimiter. It is safe for concurrent use.
type Limiter struct {
	store    Store
	enabled  bool
	limits   map[models.RatePeriod]int64
	cooldown time.Duration
	prefix   string
	log      logging.Sink
	now      func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the log sink.
func WithLogger(s logging.Sink) Option {
	return func(l *Limiter) { l.log = logging.OrNop(s) }
}

// WithClock overrides time.Now. Stores keep their own clocks.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPrefix namespaces store keys.
func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// New creates a Limiter over store. A limit of zero disables that window.
func New(store Store, cfg config.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		enabled: cfg.Enabled,
		limits: map[models.RatePeriod]int64{
			models.PeriodMinute: cfg.PerMinute,
			models.PeriodHour:   cfg.PerHour,
			models.PeriodDay:    cfg.PerDay,
		},
		cooldown: cfg.Cooldown,
		prefix:   "orchestra:rl:",
		log:      logging.Nop(),
		now:      time.Now,
	}
	if l.cooldown <= 0 {
		l.cooldown = DefaultCooldown
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Enabled reports whether limits are enforced.
func (l *Limiter) Enabled() bool { return l.enabled }

// Limit returns the configured limit for period; zero means unlimited.
func (l *Limiter) Limit(period models.RatePeriod) int64 { return l.limits[period] }

// Decision explains the outcome of Check.
type Decision struct {
	Allowed bool
	// Cooldown is set when an active cooldown lock denied the request.
	Cooldown bool
	// Period is the exhausted window when a window denied the request.
	Period models.RatePeriod
	// ResetAt is when the denying lock or window ends.
	ResetAt time.Time
}

// Check decides whether identity may make a request now. It checks the
// cooldown first, then every window. Checking never consumes quota.
func (l *Limiter) Check(ctx context.Context, identity string) (Decision, error) {
	if !l.enabled {
		return Decision{Allowed: true}, nil
	}
	if exp, locked, err := l.store.Locked(ctx, l.lockKey(identity)); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: cooldown check: %w", err)
	} else if locked {
		return Decision{Cooldown: true, ResetAt: exp}, nil
	}
	for _, p := range models.Periods {
		limit := l.limits[p]
		if limit <= 0 {
			continue
		}
		count, resetAt, err := l.store.Get(ctx, l.key(identity, p))
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: read %s window: %w", p, err)
		}
		if count >= limit {
			l.log.Log(logging.LevelDebug, "rate window exhausted", logging.Fields{
				"identity": identity, "period": string(p), "count": count, "limit": limit,
			})
			return Decision{Period: p, ResetAt: resetAt}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

// CanMakeRequest reports whether identity may make a request now.
func (l *Limiter) CanMakeRequest(ctx context.Context, identity string) (bool, error) {
	d, err := l.Check(ctx, identity)
	return d.Allowed, err
}

// RecordRequest consumes one unit of quota in every window.
func (l *Limiter) RecordRequest(ctx context.Context, identity string) error {
	if !l.enabled {
		return nil
	}
	for _, p := range models.Periods {
		if _, err := l.store.Incr(ctx, l.key(identity, p), p.Duration()); err != nil {
			return fmt.Errorf("ratelimit: record %s window: %w", p, err)
		}
	}
	return nil
}

// Remaining returns the unused quota per window; unlimited windows report -1.
func (l *Limiter) Remaining(ctx context.Context, identity string) (models.Remaining, error) {
	var rem models.Remaining
	for _, p := range models.Periods {
		n := int64(-1)
		if limit := l.limits[p]; l.enabled && limit > 0 {
			count, _, err := l.store.Get(ctx, l.key(identity, p))
			if err != nil {
				return rem, fmt.Errorf("ratelimit: read %s window: %w", p, err)
			}
			n = max(limit-count, 0)
		}
		switch p {
		case models.PeriodMinute:
			rem.PerMinute = n
		case models.PeriodHour:
			rem.PerHour = n
		case models.PeriodDay:
			rem.PerDay = n
		}
	}
	return rem, nil
}

// IsInCooldown reports whether identity is locked out.
func (l *Limiter) IsInCooldown(ctx context.Context, identity string) (bool, error) {
	_, locked, err := l.store.Locked(ctx, l.lockKey(identity))
	if err != nil {
		return false, fmt.Errorf("ratelimit: cooldown check: %w", err)
	}
	return locked, nil
}

// SetCooldown locks identity out for the configured cooldown.
func (l *Limiter) SetCooldown(ctx context.Context, identity string) error {
	if err := l.store.SetLock(ctx, l.lockKey(identity), l.cooldown); err != nil {
		return fmt.Errorf("ratelimit: set cooldown: %w", err)
	}
	l.log.Log(logging.LevelInfo, "caller in cooldown", logging.Fields{
		"identity": identity, "cooldown": l.cooldown.String(),
	})
	return nil
}

// Throttle locks identity out for the configured cooldown, but never past
// until. A zero until applies the full cooldown.
func (l *Limiter) Throttle(ctx context.Context, identity string, until time.Time) error {
	ttl := l.cooldown
	if !until.IsZero() {
		ttl = min(ttl, until.Sub(l.now()))
	}
	if ttl <= 0 {
		return nil
	}
	if err := l.store.SetLock(ctx, l.lockKey(identity), ttl); err != nil {
		return fmt.Errorf("ratelimit: set cooldown: %w", err)
	}
	l.log.Log(logging.LevelInfo, "caller in cooldown", logging.Fields{
		"identity": identity, "cooldown": ttl.String(),
	})
	return nil
}

// Status snapshots every window and the cooldown lock for identity.
func (l *Limiter) Status(ctx context.Context, identity string) (models.RateStatus, error) {
	status := models.RateStatus{Identity: identity}
	now := l.now()
	for _, p := range models.Periods {
		count, resetAt, err := l.store.Get(ctx, l.key(identity, p))
		if err != nil {
			return status, fmt.Errorf("ratelimit: read %s window: %w", p, err)
		}
		w := models.RateWindow{Identity: identity, Period: p, Count: count, Limit: l.limits[p]}
		if resetAt.IsZero() {
			w.WindowStart = now
		} else {
			w.WindowStart = resetAt.Add(-p.Duration())
		}
		status.Windows = append(status.Windows, w)
	}
	exp, locked, err := l.store.Locked(ctx, l.lockKey(identity))
	if err != nil {
		return status, fmt.Errorf("ratelimit: cooldown check: %w", err)
	}
	if locked {
		status.Cooldown = &models.CooldownLock{Identity: identity, ExpiresAt: exp}
	}
	return status, nil
}

func (l *Limiter) key(identity string, p models.RatePeriod) string {
	return l.prefix + identity + ":" + string(p)
}

func (l *Limiter) lockKey(identity string) string {
	return l.prefix + identity + ":cooldown"
}
