package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the orchestration operations as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			srv := mcp.New(s, version,
				mcp.WithCache(s.Cache()),
				mcp.WithCaller(a.caller),
				mcp.WithLogger(logging.NewZap(a.logger)),
			)
			return srv.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
