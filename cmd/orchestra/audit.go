package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/orchestra/pkg/audit"
	"github.com/pario-ai/orchestra/pkg/models"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the orchestration audit log",
	}

	cmd.AddCommand(
		newAuditQueryCmd(a),
		newAuditShowCmd(a),
		newAuditStatsCmd(a),
		newAuditCleanupCmd(a),
	)
	return cmd
}

func newAuditQueryCmd(a *app) *cobra.Command {
	var (
		operation    string
		outcome      string
		since        string
		callerPrefix string
		caller       string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := a.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			if caller != "" {
				_, callerPrefix = audit.HashCaller(caller)
			}
			opts := models.AuditQueryOpts{
				Operation:    operation,
				Outcome:      outcome,
				CallerPrefix: callerPrefix,
				Limit:        limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok or an error kind)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&callerPrefix, "caller-prefix", "", "filter by caller hash prefix")
	cmd.Flags().StringVar(&caller, "caller-id", "", "filter by caller identity (hashed before lookup)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd(a *app) *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single audit entry by request ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			l, cleanup, err := a.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: requestID,
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Request ID:    %s\n", e.RequestID)
			fmt.Printf("Operation:     %s\n", e.Operation)
			fmt.Printf("Caller hash:   %s...\n", e.CallerPrefix)
			fmt.Printf("Provider:      %s\n", e.Provider)
			fmt.Printf("Model:         %s\n", e.Model)
			fmt.Printf("Outcome:       %s\n", e.Outcome)
			fmt.Printf("Cache hit:     %t\n", e.CacheHit)
			fmt.Printf("Attempts:      %d\n", e.Attempts)
			fmt.Printf("Latency:       %dms\n", e.LatencyMs)
			fmt.Printf("Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Message != "" {
				fmt.Printf("\n--- Message ---\n%s\n", e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")
	return cmd
}

func newAuditStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by operation, day and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := a.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}
}

func newAuditCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := a.openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}
}

func (a *app) openAuditLogger() (*audit.Logger, func(), error) {
	l, err := audit.New(a.cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-26s %-10s %-20s %5s %8s %-20s\n",
		"REQUEST ID", "OPERATION", "PROVIDER", "OUTCOME", "CACHE", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 134) + "\n")
	for _, e := range entries {
		cache := "miss"
		if e.CacheHit {
			cache = "hit"
		}
		fmt.Fprintf(&b, "%-38s %-26s %-10s %-20s %5s %6dms %-20s\n",
			e.RequestID, e.Operation, e.Provider, e.Outcome, cache,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-26s %-12s %-20s %8s\n", "OPERATION", "DAY", "OUTCOME", "COUNT")
	b.WriteString(strings.Repeat("-", 69) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-26s %-12s %-20s %8d\n", s.Operation, s.Day, s.Outcome, s.Count)
	}
	return b.String()
}
