package models

import "time"

// CacheEntry is a stored cache record. Key is the storage id, never the
// caller's semantic key.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer visible at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats reports cache contents and performance.
type CacheStats struct {
	Total   int64 `json:"total"`
	Size    int64 `json:"size"`
	Expired int64 `json:"expired"`
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
