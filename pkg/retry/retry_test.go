package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
)

// recorder replaces the real sleep and records requested delays.
type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func defaults() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second, BackoffFactor: 2}
}

func TestNewDefaults(t *testing.T) {
	h := New(config.RetryConfig{}, Options{})
	cfg := h.Config()
	if cfg.MaxAttempts != 3 || cfg.BaseDelay != time.Second || cfg.MaxDelay != 8*time.Second || cfg.BackoffFactor != 2 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestDelay(t *testing.T) {
	h := New(defaults(), Options{})
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := h.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := h.Delay(200); got != 8*time.Second {
		t.Errorf("Delay(200) = %v, want cap", got)
	}
}

func TestExecuteRetriesRateLimited(t *testing.T) {
	rec := &recorder{}
	h := New(defaults(), Options{Sleep: rec.sleep})

	calls := 0
	err := h.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return aierr.Provider("generate_text", http.StatusTooManyRequests, "slow down")
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Errorf("unexpected delays: %v", rec.delays)
	}
	f := aierr.AsFailure(err)
	if f.Attempts != 3 || f.StatusCode != http.StatusTooManyRequests {
		t.Errorf("unexpected failure: %+v", f)
	}
}

func TestExecuteTerminalNotRetried(t *testing.T) {
	rec := &recorder{}
	h := New(defaults(), Options{Sleep: rec.sleep})

	calls := 0
	orig := aierr.Provider("generate_text", http.StatusBadRequest, "bad prompt")
	err := h.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return orig
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no waits, got %v", rec.delays)
	}
	if !errors.Is(err, aierr.ErrProvider) {
		t.Errorf("expected provider error, got %v", err)
	}
	if orig.Attempts != 0 {
		t.Error("caller's error must not be mutated")
	}
}

func TestExecuteRecovers(t *testing.T) {
	rec := &recorder{}
	var transitions []State
	h := New(defaults(), Options{
		Sleep:        rec.sleep,
		OnTransition: func(_, to State, _ int) { transitions = append(transitions, to) },
	})

	got, err := Do(context.Background(), h, func(ctx context.Context, attempt int) (string, error) {
		if attempt < 2 {
			return "", aierr.Transport("call", errors.New("connection reset"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("unexpected value %q", got)
	}
	want := []State{Attempting, Retrying, Attempting, Success}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestExecuteCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(defaults(), Options{Sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}})

	err := h.Execute(ctx, func(ctx context.Context, attempt int) error {
		return aierr.Provider("x", http.StatusServiceUnavailable, "")
	})
	if aierr.KindOf(err) != aierr.KindCanceled {
		t.Errorf("expected canceled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestJitterSeeded(t *testing.T) {
	cfg := defaults()
	cfg.Jitter = 0.5
	h := New(cfg, Options{Rand: rand.New(rand.NewPCG(1, 2))})

	for attempt := 1; attempt <= 4; attempt++ {
		base := h.Delay(attempt)
		d := h.jitter(base)
		if d < base || d > base+base/2 {
			t.Errorf("attempt %d: jittered %v outside [%v, %v]", attempt, d, base, base+base/2)
		}
	}
}

func TestRealSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
