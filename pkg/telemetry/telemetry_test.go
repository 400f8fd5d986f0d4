package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	if err != nil {
		t.Fatal(err)
	}

	m.ObserveRequest("generate_text", "ok", 20*time.Millisecond)
	m.ObserveRequest("generate_text", "ok", 30*time.Millisecond)
	m.ProviderCall("primary", "provider_error")
	m.Retry("primary")
	m.RateLimited("generate_text")
	m.Dropped("entities", 3)
	m.Dropped("entities", 0)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.SetCacheStats(models.CacheStats{Total: 4, Size: 512})

	if got := testutil.ToFloat64(m.requests.WithLabelValues("generate_text", "ok")); got != 2 {
		t.Errorf("requests = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEvents.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("entities")); got != 3 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEntries); got != 4 {
		t.Errorf("cache entries = %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestMetricsReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics("test", reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewMetrics("test", reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	second.RateLimited("seo")
	if got := testutil.ToFloat64(first.rateLimited.WithLabelValues("seo")); got != 1 {
		t.Errorf("collectors not shared: %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("x", "ok", time.Second)
	m.CacheHit()
	m.SetCacheStats(models.CacheStats{})
}

func TestTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tr := NewTracer(tp)

	ctx, op := tr.StartOperation(context.Background(), "generate_text", "caller12")
	_, call := tr.StartCall(ctx, "primary", "text/generate", 1)
	End(call, &aierr.Error{Kind: aierr.KindProvider, StatusCode: 502, CorrelationID: "cid-1"})
	End(op, nil)

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	callSpan, opSpan := spans[0], spans[1]
	if opSpan.Name() != "orchestra.generate_text" || opSpan.Status().Code != codes.Ok {
		t.Errorf("unexpected op span: %s %v", opSpan.Name(), opSpan.Status())
	}
	if callSpan.Parent().SpanID() != opSpan.SpanContext().SpanID() {
		t.Error("call span is not a child of the operation span")
	}
	if callSpan.Status().Code != codes.Error {
		t.Errorf("call span status = %v", callSpan.Status())
	}
	want := attribute.String("orchestra.error_kind", string(aierr.KindProvider))
	found := false
	for _, a := range callSpan.Attributes() {
		if a == want {
			found = true
		}
	}
	if !found {
		t.Errorf("missing %v in %v", want, callSpan.Attributes())
	}
}

func TestNoopTracer(t *testing.T) {
	ctx, span := NoopTracer().StartOperation(context.Background(), "x", "")
	End(span, errors.New("boom"))
	if ctx == nil {
		t.Fatal("nil context")
	}
	var nilTracer *Tracer
	_, span = nilTracer.StartCall(context.Background(), "p", "e", 1)
	End(span, nil)
}
