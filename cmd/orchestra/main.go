package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/orchestrator"
)

var version = "dev"

// app carries the state built by the root command for every subcommand.
type app struct {
	configPath string
	logLevel   string
	caller     string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "orchestra",
		Short:         "Multi-provider AI orchestration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "orchestra.yaml", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.caller, "caller", "cli", "caller identity used for rate limiting")

	root.AddCommand(
		newGenerateCmd(a),
		newAnalyzeCmd(a),
		newSEOCmd(a),
		newMetricsCmd(),
		newCacheCmd(a),
		newLimitsCmd(a),
		newAuditCmd(a),
		newModelsCmd(a),
		newHealthCmd(a),
		newMCPCmd(a),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// init loads the config, falling back to defaults when the default config
// path does not exist, and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) service(ctx context.Context) (*orchestrator.Service, error) {
	return orchestrator.New(ctx, a.cfg, orchestrator.WithLogger(logging.NewZap(a.logger)))
}

// readInput returns the joined args, or stdin when there are none or the
// only arg is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
