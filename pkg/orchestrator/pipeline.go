package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/audit"
	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/normalize"
	"github.com/pario-ai/orchestra/pkg/provider"
	"github.com/pario-ai/orchestra/pkg/retry"
	"github.com/pario-ai/orchestra/pkg/router"
	"github.com/pario-ai/orchestra/pkg/telemetry"
)

// AnonymousCaller is the rate limit identity of calls without a caller.
const AnonymousCaller = "anonymous"

// request is one provider-backed step of an operation.
type request struct {
	endpoint string
	kind     normalize.Kind
	payload  provider.Payload
}

// outcome accumulates what happened during one operation. Steps of a
// fanned-out operation share it.
type outcome struct {
	op     string
	caller string

	consume sync.Once

	mu            sync.Mutex
	hits, misses  int
	provider      string
	model         string
	attempts      int
	correlationID string
}

func (o *outcome) cached(hit bool) {
	o.mu.Lock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
	o.mu.Unlock()
}

func (o *outcome) attempt(provider, model string) {
	o.mu.Lock()
	o.provider, o.model = provider, model
	o.attempts++
	o.mu.Unlock()
}

func (o *outcome) responded(r *provider.Response) {
	o.mu.Lock()
	if r.Model != "" {
		o.model = r.Model
	}
	o.correlationID = r.CorrelationID
	o.mu.Unlock()
}

func (o *outcome) failed(err error) {
	e := aierr.As(err)
	o.mu.Lock()
	if e.CorrelationID != "" {
		o.correlationID = e.CorrelationID
	}
	o.mu.Unlock()
}

type snapshot struct {
	cacheHit      bool
	provider      string
	model         string
	attempts      int
	correlationID string
}

func (o *outcome) snapshot() snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return snapshot{
		cacheHit:      o.hits > 0 && o.misses == 0,
		provider:      o.provider,
		model:         o.model,
		attempts:      o.attempts,
		correlationID: o.correlationID,
	}
}

// run executes fn as public operation op on behalf of caller: it admits the
// call through the rate limiter, traces it, and records the outcome in
// metrics, logs, the audit log and subscriber events. Panics in fn become
// provider errors.
func run[T any](s *Service, ctx context.Context, op, caller string, fn func(ctx context.Context, rec *outcome) (T, error)) (out T, err error) {
	if caller == "" {
		caller = AnonymousCaller
	}
	start := s.now()
	hash, prefix := audit.HashCaller(caller)
	rec := &outcome{op: op, caller: caller}

	ctx, span := s.tracer.StartOperation(ctx, op, prefix)
	defer func() {
		if r := recover(); r != nil {
			s.log.Log(logging.LevelError, "operation panicked", logging.Fields{
				"operation": op, "panic": r, "stack": string(debug.Stack()),
			})
			var zero T
			out = zero
			err = &aierr.Error{Kind: aierr.KindProvider, Op: op, Message: "internal error", Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			rec.failed(err)
			e := aierr.Annotate(err, op, rec.snapshot().correlationID)
			e.Op = op
			err = e
		}
		telemetry.End(span, err)
		s.finish(ctx, rec, hash, prefix, start, err)
	}()

	if err := s.admit(ctx, op, caller); err != nil {
		return out, err
	}
	return fn(ctx, rec)
}

// admit rejects callers in cooldown or over a window. A window denial puts
// the caller into cooldown until at most the window resets. Limiter store
// failures let the call through.
func (s *Service) admit(ctx context.Context, op, caller string) error {
	d, err := s.limiter.Check(ctx, caller)
	if err != nil {
		s.log.Log(logging.LevelWarn, "rate limit check failed, allowing call", logging.Fields{
			"operation": op, "error": err,
		})
		return nil
	}
	if d.Allowed {
		return nil
	}
	s.metrics.RateLimited(op)
	if d.Cooldown {
		return aierr.RateLimited(op, fmt.Sprintf("caller in cooldown until %s", d.ResetAt.UTC().Format(time.RFC3339)))
	}
	if err := s.limiter.Throttle(ctx, caller, d.ResetAt); err != nil {
		s.log.Log(logging.LevelWarn, "failed to set cooldown", logging.Fields{"operation": op, "error": err})
	}
	return aierr.RateLimited(op, fmt.Sprintf("%s limit reached, resets at %s", d.Period, d.ResetAt.UTC().Format(time.RFC3339)))
}

// record consumes quota for the operation exactly once, on its first cache
// miss.
func (s *Service) record(ctx context.Context, rec *outcome) {
	rec.consume.Do(func() {
		if err := s.limiter.RecordRequest(ctx, rec.caller); err != nil {
			s.log.Log(logging.LevelWarn, "failed to record request", logging.Fields{
				"operation": rec.op, "error": err,
			})
		}
	})
}

// step serves one request from the cache or the providers.
func (s *Service) step(ctx context.Context, rec *outcome, req request) (normalize.Result, error) {
	key, err := cache.Key(req.endpoint, map[string]any{
		"input": strings.Join(strings.Fields(req.payload.Input()), " "),
		"data":  req.payload.Data,
		"model": req.payload.Model,
	}, req.payload.Params)
	if err != nil {
		return nil, aierr.Validation(rec.op, "build cache key: %v", err)
	}

	if data, ok := s.cache.Get(ctx, key); ok {
		if res, err := normalize.Unmarshal(data); err == nil {
			rec.cached(true)
			return res, nil
		}
		s.cache.Delete(ctx, key)
	}
	rec.cached(false)
	s.record(ctx, rec)

	resp, err := s.dispatch(ctx, rec, req)
	if err != nil {
		return nil, err
	}
	res, err := s.norm.Process(req.kind, resp.Data)
	if err != nil {
		e := aierr.Annotate(err, rec.op, resp.CorrelationID)
		e.Provider = resp.Provider
		return nil, e
	}
	if n := dropped(res); n > 0 {
		s.metrics.Dropped(string(req.kind), n)
	}
	if data, err := normalize.Marshal(res); err == nil {
		s.cache.Set(ctx, key, data, s.cfg.OperationTTL(rec.op))
	}
	return res, nil
}

// dispatch calls the providers routed for the operation in order. Each
// provider gets the full retry budget; the next one is tried only when the
// failure is transient or the endpoint is unsupported.
func (s *Service) dispatch(ctx context.Context, rec *outcome, req request) (*provider.Response, error) {
	routes, err := s.router.Resolve(rec.op, req.payload.Model)
	if err != nil {
		return nil, aierr.Config(rec.op, "%v", err)
	}

	var lastErr error
	for i, route := range routes {
		client, ok := s.clients.Get(route.Provider.Name)
		if !ok {
			lastErr = aierr.Config(rec.op, "provider %q has no client", route.Provider.Name)
			continue
		}
		payload := req.payload
		payload.Model = route.Model

		resp, err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) (*provider.Response, error) {
			rec.attempt(client.Name(), route.Model)
			cctx, span := s.tracer.StartCall(ctx, client.Name(), req.endpoint, attempt)
			resp, err := safeCall(cctx, client, req.endpoint, payload)
			telemetry.End(span, err)
			s.metrics.ProviderCall(client.Name(), outcomeLabel(err))
			return resp, err
		})
		if err == nil {
			rec.responded(resp)
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !router.ShouldFallback(err) {
			break
		}
		if i < len(routes)-1 {
			s.log.Log(logging.LevelWarn, "provider failed, falling back", logging.Fields{
				"operation": rec.op,
				"provider":  client.Name(),
				"next":      routes[i+1].Provider.Name,
				"error":     err,
			})
		}
	}
	return nil, lastErr
}

// safeCall turns a panicking client into a provider error.
func safeCall(ctx context.Context, c provider.Client, endpoint string, p provider.Payload) (resp *provider.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &aierr.Error{
				Kind:     aierr.KindProvider,
				Op:       endpoint,
				Provider: c.Name(),
				Message:  "provider client panicked",
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()
	resp, err = c.Call(ctx, endpoint, p, provider.CallOptions{})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &aierr.Error{Kind: aierr.KindValidation, Op: endpoint, Provider: c.Name(), Message: "empty response"}
	}
	if resp.Provider == "" {
		resp.Provider = c.Name()
	}
	return resp, nil
}

func (s *Service) finish(ctx context.Context, rec *outcome, hash, prefix string, start time.Time, err error) {
	latency := s.now().Sub(start)
	snap := rec.snapshot()
	label := outcomeLabel(err)
	attempts := snap.attempts
	if e := aierr.As(err); e != nil && e.Attempts > attempts {
		attempts = e.Attempts
	}

	s.metrics.ObserveRequest(rec.op, label, latency)

	fields := logging.Fields{
		"operation":      rec.op,
		"caller_prefix":  prefix,
		"provider":       snap.provider,
		"model":          snap.model,
		"cache_hit":      snap.cacheHit,
		"attempts":       attempts,
		"latency_ms":     latency.Milliseconds(),
		"correlation_id": snap.correlationID,
	}
	switch aierr.KindOf(err) {
	case "":
		s.log.Log(logging.LevelInfo, "operation completed", fields)
	case aierr.KindRateLimited, aierr.KindCanceled:
		fields["error"] = err
		s.log.Log(logging.LevelWarn, "operation rejected", fields)
	default:
		fields["error"] = err
		s.log.Log(logging.LevelError, "operation failed", fields)
	}

	requestID := s.newID()
	if s.auditor != nil {
		entry := models.AuditEntry{
			RequestID:    requestID,
			CallerHash:   hash,
			CallerPrefix: prefix,
			Operation:    rec.op,
			Provider:     snap.provider,
			Model:        snap.model,
			Outcome:      label,
			CacheHit:     snap.cacheHit,
			Attempts:     attempts,
			LatencyMs:    latency.Milliseconds(),
		}
		if err != nil {
			entry.Message = err.Error()
		}
		if aerr := s.auditor.Log(context.WithoutCancel(ctx), entry); aerr != nil {
			s.log.Log(logging.LevelWarn, "audit write failed", logging.Fields{"operation": rec.op, "error": aerr})
		}
	}

	s.emit(Event{
		RequestID:     requestID,
		Operation:     rec.op,
		CallerPrefix:  prefix,
		Provider:      snap.provider,
		Model:         snap.model,
		CacheHit:      snap.cacheHit,
		Attempts:      attempts,
		Latency:       latency,
		CorrelationID: snap.correlationID,
		Err:           err,
		Time:          s.now(),
	})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(aierr.KindOf(err))
}

func dropped(r normalize.Result) int {
	switch v := r.(type) {
	case normalize.ImageResult:
		return v.Dropped
	case normalize.EntityList:
		return v.Dropped
	case normalize.TopicList:
		return v.Dropped
	case normalize.KeywordList:
		return v.Dropped
	case normalize.DependencyList:
		return v.Dropped
	case normalize.POSTagList:
		return v.Dropped
	default:
		return 0
	}
}
