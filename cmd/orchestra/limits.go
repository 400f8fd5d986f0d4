package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newLimitsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Inspect rate limits",
	}

	statusCmd := &cobra.Command{
		Use:   "status [identity]",
		Short: "Show rate limit windows for a caller (default: --caller)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := a.caller
			if len(args) == 1 {
				identity = args[0]
			}
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if !s.Limiter().Enabled() {
				fmt.Println("Rate limiting is disabled.")
				return nil
			}
			status, err := s.Limiter().Status(cmd.Context(), identity)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIOD\tUSED\tLIMIT\tWINDOW START")
			for _, win := range status.Windows {
				limit := "unlimited"
				if win.Limit > 0 {
					limit = fmt.Sprintf("%d", win.Limit)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", win.Period, win.Count, limit, win.WindowStart.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if status.Cooldown != nil {
				fmt.Printf("\nIn cooldown until %s\n", status.Cooldown.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
