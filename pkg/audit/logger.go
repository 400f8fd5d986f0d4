// Package audit records the outcome of every orchestration call in a
// dedicated SQLite database.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/pario-ai/orchestra/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries audit entries.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	exclude map[string]bool
	now     func() time.Time
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	exc := make(map[string]bool)
	for _, v := range cfg.ExcludeOperations {
		exc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		exclude: exc,
		now:     time.Now,
	}

	if cfg.RetentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id    TEXT PRIMARY KEY,
		caller_hash   TEXT NOT NULL,
		caller_prefix TEXT NOT NULL,
		operation     TEXT NOT NULL,
		provider      TEXT,
		model         TEXT,
		outcome       TEXT NOT NULL,
		message       TEXT,
		cache_hit     INTEGER NOT NULL DEFAULT 0,
		attempts      INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER,
		created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_prefix ON audit_log(caller_prefix)`)
	return err
}

// Log inserts an audit entry unless its operation is excluded. Messages are
// truncated to the configured maximum size.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.exclude[entry.Operation] {
		return nil
	}

	msg := entry.Message
	if l.cfg.MaxMessageSize > 0 && len(msg) > l.cfg.MaxMessageSize {
		msg = msg[:l.cfg.MaxMessageSize]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, caller_hash, caller_prefix, operation, provider, model,
		 outcome, message, cache_hit, attempts, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.CallerHash, entry.CallerPrefix,
		entry.Operation, entry.Provider, entry.Model,
		entry.Outcome, msg, entry.CacheHit, entry.Attempts,
		entry.LatencyMs, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, caller_hash, caller_prefix, operation, provider, model,
		outcome, message, cache_hit, attempts, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Operation != "" {
		q += " AND operation = ?"
		args = append(args, opts.Operation)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	if opts.CallerPrefix != "" {
		q += " AND caller_prefix = ?"
		args = append(args, opts.CallerPrefix)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var provider, model, message sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.CallerHash, &e.CallerPrefix, &e.Operation,
			&provider, &model, &e.Outcome, &message,
			&e.CacheHit, &e.Attempts, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Provider = provider.String
		e.Model = model.String
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts grouped by operation, day and outcome.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT operation, date(created_at) as day, outcome, count(*) as cnt
		 FROM audit_log GROUP BY operation, day, outcome
		 ORDER BY day DESC, operation, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Operation, &day, &s.Outcome, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays).UTC()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashCaller returns the SHA-256 hex hash of a caller identity and its
// first 8 hex characters. The raw identity is never stored.
func HashCaller(caller string) (hash, prefix string) {
	h := sha256.Sum256([]byte(caller))
	hash = hex.EncodeToString(h[:])
	return hash, hash[:8]
}
