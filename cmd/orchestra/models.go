package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/orchestra/pkg/registry"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(a.cfg.Models)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tVERSION\tPROVIDER\tCAPABILITIES")
			for _, m := range reg.List() {
				provider := m.Provider
				if provider == "" {
					provider = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Key(), m.Name, m.Version, provider, strings.Join(m.Capabilities, ","))
			}
			return w.Flush()
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			report := s.Health(cmd.Context())
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tHEALTHY\tLATENCY\tERROR")
			for _, p := range report.Providers {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", p.Name, p.Healthy, p.Latency, p.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("no healthy provider")
			}
			return nil
		},
	}
}
