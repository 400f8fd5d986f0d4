package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/provider"
)

// ProviderHealth is the result of pinging one provider.
type ProviderHealth struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthReport summarizes provider reachability and cache state.
type HealthReport struct {
	Healthy   bool              `json:"healthy"`
	Providers []ProviderHealth  `json:"providers"`
	Cache     models.CacheStats `json:"cache"`
}

// Health pings every provider client that supports it, concurrently.
// Clients without a health endpoint are reported healthy. The report is
// healthy when at least one provider is. Health does not consume rate limit
// quota.
func (s *Service) Health(ctx context.Context) HealthReport {
	names := s.clients.Names()
	results := make([]ProviderHealth, len(names))

	var g errgroup.Group
	g.SetLimit(fanOut)
	for i, name := range names {
		client, _ := s.clients.Get(name)
		p, ok := client.(provider.Pinger)
		if !ok {
			results[i] = ProviderHealth{Name: name, Healthy: true}
			continue
		}
		g.Go(func() error {
			start := s.now()
			err := p.Ping(ctx)
			h := ProviderHealth{Name: name, Healthy: err == nil, Latency: s.now().Sub(start)}
			if err != nil {
				h.Error = err.Error()
				s.log.Log(logging.LevelWarn, "provider health check failed", logging.Fields{
					"provider": name, "error": err,
				})
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{Providers: results}
	for _, r := range results {
		report.Healthy = report.Healthy || r.Healthy
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		s.log.Log(logging.LevelWarn, "cache stats unavailable", logging.Fields{"error": err})
	}
	report.Cache = stats
	s.metrics.SetCacheStats(stats)
	return report
}
