package aierr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", Transport("call", errors.New("connection refused")), true},
		{"429", Provider("call", 429, ""), true},
		{"500", Provider("call", 500, ""), true},
		{"503 wrapped", fmt.Errorf("outer: %w", Provider("call", 503, "")), true},
		{"400", Provider("call", 400, ""), false},
		{"404", Provider("call", 404, ""), false},
		{"validation", Validation("parse", "bad json"), false},
		{"config", Config("call", "missing key"), false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", RateLimited("generate_text", "per_minute exhausted"))
	if !errors.Is(err, ErrRateLimited) {
		t.Error("expected errors.Is to match rate limit kind")
	}
	if errors.Is(err, ErrProvider) {
		t.Error("did not expect provider kind to match")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(context.Canceled) != KindCanceled {
		t.Error("context.Canceled should map to canceled")
	}
	if KindOf(errors.New("x")) != KindProvider {
		t.Error("unclassified errors map to provider")
	}
	if KindOf(nil) != "" {
		t.Error("nil has no kind")
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindProvider, Op: "generate_text", Provider: "gemini", StatusCode: 503, Message: "overloaded", Attempts: 3}
	want := "generate_text: provider_error [gemini] (status 503): overloaded after 3 attempts"
	if e.Error() != want {
		t.Errorf("got %q, want %q", e.Error(), want)
	}
}

func TestAsFailure(t *testing.T) {
	e := Provider("call", 502, "bad gateway")
	e.CorrelationID = "abc"
	e.Attempts = 2
	f := AsFailure(fmt.Errorf("x: %w", e))
	if f.Kind != KindProvider || f.CorrelationID != "abc" || f.Attempts != 2 || f.StatusCode != 502 {
		t.Errorf("unexpected failure: %+v", f)
	}
	if AsFailure(nil) != nil {
		t.Error("nil error should produce nil failure")
	}
	if got := AsFailure(errors.New("raw")); got.Message != "raw" {
		t.Errorf("unexpected message %q", got.Message)
	}
}

func TestAnnotate(t *testing.T) {
	orig := Provider("call", 502, "bad gateway")
	got := Annotate(orig, "generate_text", "cid-9")
	if got.Op != "call" || got.CorrelationID != "cid-9" {
		t.Errorf("unexpected annotation: %+v", got)
	}
	if orig.CorrelationID != "" {
		t.Error("original error mutated")
	}

	foreign := Annotate(context.Canceled, "generate_text", "")
	if foreign.Kind != KindCanceled || foreign.Op != "generate_text" || !errors.Is(foreign, context.Canceled) {
		t.Errorf("unexpected foreign annotation: %+v", foreign)
	}
	if Annotate(nil, "x", "") != nil {
		t.Error("nil should stay nil")
	}
}
