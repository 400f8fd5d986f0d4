// Package sqlite is a cache.Store backed by an SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/orchestra/pkg/cache"
	"github.com/pario-ai/orchestra/pkg/models"
)

// Store persists cache entries in a single table.
type Store struct {
	db *sql.DB
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	id TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

// New opens the database at dbPath and migrates the cache table.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, id string) (models.CacheEntry, error) {
	var value []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE id = ?`, id,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache load: %w", err)
	}

	return models.CacheEntry{Key: id, Value: value, ExpiresAt: time.Unix(0, expiresAt)}, nil
}

func (s *Store) Save(ctx context.Context, entry models.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (id, value, expires_at) VALUES (?, ?, ?)`,
		entry.Key, entry.Value, entry.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("cache remove: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries that expired at or before now in one statement.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge expired: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Scan(ctx context.Context, fn func(models.CacheEntry) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, value, expires_at FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.CacheEntry
		var expiresAt int64
		if err := rows.Scan(&e.Key, &e.Value, &expiresAt); err != nil {
			return fmt.Errorf("cache scan row: %w", err)
		}
		e.ExpiresAt = time.Unix(0, expiresAt)
		if !fn(e) {
			return nil
		}
	}
	return rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ cache.Store = (*Store)(nil)
