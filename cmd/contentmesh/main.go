// Package main provides the contentmesh CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/config"
	"github.com/aristath/contentmesh/internal/logging"
)

var version = "0.1.0"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string // overrides the project config path
	logLevel   string
}

func main() {
	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "contentmesh",
		Short: "Generate product content pages with a mesh of cooperating workers",
		Long: `contentmesh turns a product record into FAQ, product and comparison pages.

Workers cooperate over an in-process message bus: a normalizer cleans the
record, generators produce questions and content blocks, and the page
assembler renders every template once both inputs are ready.

Examples:
  contentmesh run                              # Run on the built-in sample product
  contentmesh run -p serum.json -p cream.json  # Run two products concurrently
  contentmesh run -p serum.json --tui          # Watch the workers live
  contentmesh templates                        # List page templates
  contentmesh history --db runs.db             # List archived runs`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Project config file (default .contentmesh/config.json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		runCmd(opts),
		templatesCmd(opts),
		historyCmd(opts),
		configCmd(opts),
	)
	return root
}

// configPaths resolves the global and project config locations.
func (o *globalOptions) configPaths() (global, project string, err error) {
	global, project, err = config.DefaultPaths()
	if err != nil {
		return "", "", err
	}
	if o.configPath != "" {
		project = o.configPath
	}
	return global, project, nil
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	global, project, err := o.configPaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(global, project)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	return logger, nil
}
