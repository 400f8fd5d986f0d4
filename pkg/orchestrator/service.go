// Package orchestrator is the AI service façade. Every public operation runs
// the same pipeline: rate limit check, cache lookup, quota accounting, a
// retried provider call with fallback routing, normalization and a cache
// write. Failures are returned as *aierr.Error values and never panic out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/audit"
	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/cache/file"
	"github.com/pario-ai/orchestra/pkg/cache/memory"
	cacheredis "github.com/pario-ai/orchestra/pkg/cache/redis"
	cachesqlite "github.com/pario-ai/orchestra/pkg/cache/sqlite"
	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/normalize"
	"github.com/pario-ai/orchestra/pkg/provider"
	"github.com/pario-ai/orchestra/pkg/provider/deepseek"
	"github.com/pario-ai/orchestra/pkg/provider/gemini"
	"github.com/pario-ai/orchestra/pkg/ratelimit"
	rlredis "github.com/pario-ai/orchestra/pkg/ratelimit/redis"
	"github.com/pario-ai/orchestra/pkg/registry"
	"github.com/pario-ai/orchestra/pkg/retry"
	"github.com/pario-ai/orchestra/pkg/router"
	"github.com/pario-ai/orchestra/pkg/telemetry"
	"github.com/pario-ai/orchestra/pkg/textmetrics"
)

// Service is the orchestrator. Construct it with New; it is safe for
// concurrent use by any number of callers.
type Service struct {
	cfg      *config.Config
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	retry    *retry.Handler
	clients  *provider.Set
	router   *router.Router
	registry *registry.Registry
	norm     *normalize.Normalizer
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	auditor  *audit.Logger
	analyzer *textmetrics.Analyzer
	log      logging.Sink
	now      func() time.Time
	newID    func() string

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int

	redis     *redis.Client
	ownsRedis bool
}

type settings struct {
	logger     logging.Sink
	clients    []provider.Client
	doer       provider.Doer
	cacheStore cache.Store
	rateStore  ratelimit.Store
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error
	redis      *redis.Client
	newID      func() string
	overlay    config.Store
}

// Option customizes a Service.
type Option func(*settings)

// WithLogger sets the log sink. Default: discard.
func WithLogger(s logging.Sink) Option { return func(o *settings) { o.logger = s } }

// WithClients registers prebuilt provider clients. A client replaces the one
// New would build for the provider config of the same name.
func WithClients(c ...provider.Client) Option {
	return func(o *settings) { o.clients = append(o.clients, c...) }
}

// WithHTTPDoer sets the HTTP client used by built provider clients.
func WithHTTPDoer(d provider.Doer) Option { return func(o *settings) { o.doer = d } }

// WithCacheStore overrides the configured cache backend.
func WithCacheStore(s cache.Store) Option { return func(o *settings) { o.cacheStore = s } }

// WithRateStore overrides the configured rate limit backend.
func WithRateStore(s ratelimit.Store) Option { return func(o *settings) { o.rateStore = s } }

// WithRegisterer sets the Prometheus registerer. Default:
// prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option { return func(o *settings) { o.registerer = r } }

// WithTracerProvider sets the OpenTelemetry tracer provider and enables
// tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *settings) { o.tracer = tp }
}

// WithClock overrides time.Now for the cache, limiter and latency.
func WithClock(now func() time.Time) Option { return func(o *settings) { o.clock = now } }

// WithSleep overrides the retry backoff wait.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(o *settings) { o.sleep = f }
}

// WithRedis shares an existing client with the redis backends. The Service
// does not close it.
func WithRedis(c *redis.Client) Option { return func(o *settings) { o.redis = c } }

// WithSettings overlays host-supplied settings onto the config passed to
// New. See config.FromStore for the recognised keys.
func WithSettings(st config.Store) Option { return func(o *settings) { o.overlay = st } }

// WithIDGenerator overrides the request id generator.
func WithIDGenerator(f func() string) Option { return func(o *settings) { o.newID = f } }

// New builds a Service from cfg (config.Default() when nil).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := settings{clock: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	if o.overlay != nil {
		c := *cfg
		c.Providers = slices.Clone(cfg.Providers)
		overlaid, err := config.FromStore(o.overlay, &c)
		if err != nil {
			return nil, aierr.Wrap(aierr.KindConfig, "orchestrator", err)
		}
		cfg = overlaid
	}
	if err := cfg.Validate(); err != nil {
		return nil, aierr.Wrap(aierr.KindConfig, "orchestrator", err)
	}

	s := &Service{
		cfg:      cfg,
		router:   router.New(cfg),
		registry: registry.New(cfg.Models),
		log:      logging.OrNop(o.logger),
		now:      o.clock,
		newID:    o.newID,
		subs:     make(map[int]func(Event)),
		redis:    o.redis,
	}
	s.norm = normalize.New(s.log)

	if cfg.Telemetry.Metrics {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		m, err := telemetry.NewMetrics(cfg.Telemetry.Namespace, reg)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	switch {
	case o.tracer != nil:
		s.tracer = telemetry.NewTracer(o.tracer)
	case cfg.Telemetry.Tracing:
		s.tracer = telemetry.NewTracer(nil)
	default:
		s.tracer = telemetry.NoopTracer()
	}

	if err := s.initRedis(ctx, o); err != nil {
		return nil, err
	}

	store, err := s.cacheStore(o)
	if err != nil {
		s.Close()
		return nil, err
	}
	var observer cache.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	s.cache = cache.New(store, cache.Options{
		Enabled:  cfg.Cache.Enabled,
		TTL:      cfg.Cache.TTL,
		Logger:   s.log,
		Observer: observer,
		Now:      s.now,
	})
	s.analyzer = textmetrics.NewAnalyzer(s.cache, cfg.OperationTTL(OpAnalyzeContent))

	rateStore := o.rateStore
	if rateStore == nil {
		if cfg.RateLimit.Backend == "redis" {
			rateStore = rlredis.New(s.redis)
		} else {
			rateStore = ratelimit.NewMemoryStore(s.now)
		}
	}
	s.limiter = ratelimit.New(rateStore, cfg.RateLimit,
		ratelimit.WithLogger(s.log), ratelimit.WithClock(s.now))

	s.retry = retry.New(cfg.Retry, retry.Options{
		Sleep:   o.sleep,
		OnRetry: s.onRetry,
	})

	s.clients, err = buildClients(cfg, o)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Audit.Enabled {
		s.auditor, err = audit.New(cfg.Audit)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// MustNew is New for programs that cannot start without a Service.
func MustNew(ctx context.Context, cfg *config.Config, opts ...Option) *Service {
	s, err := New(ctx, cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("orchestrator: %v", err))
	}
	return s
}

func (s *Service) initRedis(ctx context.Context, o settings) error {
	needs := (s.cfg.Cache.Backend == "redis" && o.cacheStore == nil) ||
		(s.cfg.RateLimit.Backend == "redis" && o.rateStore == nil)
	if !needs || s.redis != nil {
		return nil
	}
	client, err := cacheredis.Dial(ctx, s.cfg.Redis.URL)
	if err != nil {
		return aierr.Wrap(aierr.KindConfig, "orchestrator", err)
	}
	s.redis = client
	s.ownsRedis = true
	return nil
}

func (s *Service) cacheStore(o settings) (cache.Store, error) {
	if o.cacheStore != nil {
		return o.cacheStore, nil
	}
	switch s.cfg.Cache.Backend {
	case "file":
		st, err := file.New(s.cfg.Cache.Dir)
		if err != nil {
			return nil, aierr.Wrap(aierr.KindConfig, "orchestrator", err)
		}
		return st, nil
	case "sqlite":
		st, err := cachesqlite.New(s.cfg.DBPath)
		if err != nil {
			return nil, aierr.Wrap(aierr.KindConfig, "orchestrator", err)
		}
		return st, nil
	case "redis":
		return cacheredis.New(s.redis, cacheredis.DefaultPrefix), nil
	default:
		return memory.New(0), nil
	}
}

// buildClients creates one client per configured provider by dialect type,
// unless a prebuilt client with that name was supplied.
func buildClients(cfg *config.Config, o settings) (*provider.Set, error) {
	set := provider.NewSet(o.clients...)
	var copts []provider.ClientOption
	if o.doer != nil {
		copts = append(copts, provider.WithDoer(o.doer))
	}
	for _, pc := range cfg.Providers {
		if _, ok := set.Get(pc.Name); ok {
			continue
		}
		var (
			c   *provider.HTTPClient
			err error
		)
		switch pc.Type {
		case config.ProviderGemini:
			c, err = gemini.New(pc, copts...)
		case config.ProviderDeepSeek:
			c, err = deepseek.New(pc, copts...)
		default:
			c, err = provider.NewHTTPClient(pc, provider.Native{}, copts...)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		set.Add(c)
	}
	return set, nil
}

// Close releases the cache store, audit database and any owned Redis
// client.
func (s *Service) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.auditor != nil {
		errs = append(errs, s.auditor.Close())
	}
	if s.ownsRedis && s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// Config returns the effective configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Cache returns the result cache.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Limiter returns the rate limiter.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// Registry returns the model registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Auditor returns the audit logger, or nil when auditing is disabled.
func (s *Service) Auditor() *audit.Logger { return s.auditor }

// Providers returns the registered provider names.
func (s *Service) Providers() []string { return s.clients.Names() }

func (s *Service) onRetry(attempt int, err error, delay time.Duration) {
	e := aierr.As(err)
	s.metrics.Retry(e.Provider)
	s.log.Log(logging.LevelWarn, "retrying provider call", logging.Fields{
		"provider":       e.Provider,
		"attempt":        attempt,
		"delay":          delay.String(),
		"correlation_id": e.CorrelationID,
		"error":          err,
	})
}
