package textmetrics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pario-ai/orchestra/pkg/cache"
)

// CacheNamespace prefixes content-hash keys for cached reports.
const CacheNamespace = "textmetrics"

// Analyzer memoizes Analyze in a ResultCache keyed by content hash.
type Analyzer struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewAnalyzer creates an Analyzer. A nil cache disables memoization; a
// non-positive ttl uses the cache default.
func NewAnalyzer(c *cache.Cache, ttl time.Duration) *Analyzer {
	return &Analyzer{cache: c, ttl: ttl}
}

// Analyze returns the Report for text, from cache when possible.
func (a *Analyzer) Analyze(ctx context.Context, text string) Report {
	if a == nil || a.cache == nil {
		return Analyze(text)
	}
	key := cache.ContentHash(CacheNamespace, text)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var r Report
		if err := json.Unmarshal(raw, &r); err == nil {
			return r
		}
		a.cache.Delete(ctx, key)
	}
	r := Analyze(text)
	if raw, err := json.Marshal(r); err == nil {
		a.cache.Set(ctx, key, raw, a.ttl)
	}
	return r
}
