// Package retry re-runs transient provider failures with capped exponential
// backoff.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
)

// State is the phase of one Execute call.
type State int

const (
	Idle State = iota
	Attempting
	Retrying
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Retrying:
		return "retrying"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Defaults used for zero-valued config fields.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 8 * time.Second
	DefaultFactor      = 2.0
)

// Options tune a Handler beyond config.RetryConfig.
type Options struct {
	// Retryable classifies errors. Default: aierr.IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnTransition observes state changes.
	OnTransition func(from, to State, attempt int)
	// Sleep waits for d or until ctx is done. Default uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand supplies jitter. Default is a package-level source.
	Rand *rand.Rand
}

// Handler is the RetryHandler. A Handler holds no per-call state and may be
// shared.
type Handler struct {
	cfg  config.RetryConfig
	opts Options

	randMu sync.Mutex
}

// New creates a Handler, filling zero config fields with defaults.
func New(cfg config.RetryConfig, opts Options) *Handler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultFactor
	}
	if opts.Retryable == nil {
		opts.Retryable = aierr.IsRetryable
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Handler{cfg: cfg, opts: opts}
}

// Config returns the effective configuration.
func (h *Handler) Config() config.RetryConfig { return h.cfg }

// Delay returns the backoff after the given failed attempt (1-based):
// min(BaseDelay * Factor^(attempt-1), MaxDelay), before jitter.
func (h *Handler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(h.cfg.BaseDelay) * math.Pow(h.cfg.BackoffFactor, float64(attempt-1))
	if d > float64(h.cfg.MaxDelay) || math.IsInf(d, 0) {
		return h.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Execute calls op until it succeeds, fails terminally or exhausts
// MaxAttempts. The returned error carries the attempt count.
func (h *Handler) Execute(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	state := Idle
	move := func(to State, attempt int) {
		if h.opts.OnTransition != nil {
			h.opts.OnTransition(state, to, attempt)
		}
		state = to
	}

	for attempt := 1; ; attempt++ {
		move(Attempting, attempt)
		err := op(ctx, attempt)
		if err == nil {
			move(Success, attempt)
			return nil
		}

		if ctx.Err() != nil || !h.opts.Retryable(err) || attempt >= h.cfg.MaxAttempts {
			move(Failed, attempt)
			return annotate(err, attempt)
		}

		delay := h.jitter(h.Delay(attempt))
		move(Retrying, attempt)
		if h.opts.OnRetry != nil {
			h.opts.OnRetry(attempt, err, delay)
		}
		if err := h.opts.Sleep(ctx, delay); err != nil {
			move(Failed, attempt)
			return annotate(aierr.Wrap(aierr.KindCanceled, "retry", err), attempt)
		}
	}
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, h *Handler, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := h.Execute(ctx, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (h *Handler) jitter(d time.Duration) time.Duration {
	if h.cfg.Jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * h.cfg.Jitter
	var f float64
	if h.opts.Rand != nil {
		h.randMu.Lock()
		f = h.opts.Rand.Float64()
		h.randMu.Unlock()
	} else {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		f = rand.Float64()
	}
	return d + time.Duration(spread*f)
}

// annotate records the attempt count on a copy of err's classification so
// errors shared with the caller are never mutated.
func annotate(err error, attempts int) error {
	cp := *aierr.As(err)
	if _, ok := err.(*aierr.Error); !ok {
		cp.Err = err
	}
	cp.Attempts = attempts
	return &cp
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
