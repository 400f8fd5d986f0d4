package models

import "time"

// AuditEntry records the outcome of one orchestration call.
type AuditEntry struct {
	RequestID    string    `json:"request_id"`
	CallerHash   string    `json:"caller_hash"`
	CallerPrefix string    `json:"caller_prefix"`
	Operation    string    `json:"operation"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Outcome      string    `json:"outcome"` // "ok" or an error kind
	Message      string    `json:"message,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	Attempts     int       `json:"attempts"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled           bool     `yaml:"enabled"`
	DBPath            string   `yaml:"db_path"`
	RetentionDays     int      `yaml:"retention_days"`
	ExcludeOperations []string `yaml:"exclude_operations"`
	MaxMessageSize    int      `yaml:"max_message_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Operation    string
	Outcome      string
	Since        time.Time
	CallerPrefix string
	RequestID    string
	Limit        int
}

// AuditStat holds aggregate audit counts for an operation/day combination.
type AuditStat struct {
	Operation string
	Day       string
	Outcome   string
	Count     int
}
