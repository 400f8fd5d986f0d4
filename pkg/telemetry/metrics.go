// Package telemetry exposes orchestration metrics through Prometheus and
// spans through OpenTelemetry. A nil *Metrics or *Tracer is a valid no-op.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestration collectors. It implements cache.Observer.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	providerCalls *prometheus.CounterVec
	retries       *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
	cacheBytes    prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. Collectors already registered by an earlier call are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Orchestration requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Orchestration request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Provider call retries",
		}, []string{"provider"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Result cache hits, misses and expirations",
		}, []string{"event"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests denied by the rate limiter",
		}, []string{"operation"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_dropped_total",
			Help:      "Invalid elements dropped during normalization",
		}, []string{"kind"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries in the result cache",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Stored size of the result cache",
		}),
	}

	if reg == nil {
		return m, nil
	}
	var err, e error
	m.requests, e = register(reg, m.requests)
	err = errors.Join(err, e)
	m.duration, e = register(reg, m.duration)
	err = errors.Join(err, e)
	m.providerCalls, e = register(reg, m.providerCalls)
	err = errors.Join(err, e)
	m.retries, e = register(reg, m.retries)
	err = errors.Join(err, e)
	m.cacheEvents, e = register(reg, m.cacheEvents)
	err = errors.Join(err, e)
	m.rateLimited, e = register(reg, m.rateLimited)
	err = errors.Join(err, e)
	m.dropped, e = register(reg, m.dropped)
	err = errors.Join(err, e)
	m.cacheEntries, e = register(reg, m.cacheEntries)
	err = errors.Join(err, e)
	m.cacheBytes, e = register(reg, m.cacheBytes)
	err = errors.Join(err, e)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// ObserveRequest records one finished orchestration request. Outcome is "ok"
// or an error kind.
func (m *Metrics) ObserveRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// ProviderCall records one provider attempt.
func (m *Metrics) ProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// Retry records a retry scheduled against provider.
func (m *Metrics) Retry(provider string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(provider).Inc()
}

// RateLimited records a denied request.
func (m *Metrics) RateLimited(operation string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(operation).Inc()
}

// Dropped records elements discarded by the normalizer.
func (m *Metrics) Dropped(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(kind).Add(float64(n))
}

// SetCacheStats updates the cache gauges.
func (m *Metrics) SetCacheStats(s models.CacheStats) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(s.Total))
	m.cacheBytes.Set(float64(s.Size))
}

func (m *Metrics) CacheHit()     { m.cacheEvent("hit") }
func (m *Metrics) CacheMiss()    { m.cacheEvent("miss") }
func (m *Metrics) CacheExpired() { m.cacheEvent("expired") }

func (m *Metrics) cacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}
