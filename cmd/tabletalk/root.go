package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/germanamz/tabletalk/pkg/engine"
)

const defaultConfigPath = "tabletalk.yaml"

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tabletalk",
		Short: "Ask questions about a SQL database in plain language",
		Long: `tabletalk lets a language model answer questions about a SQL database.
The model inspects the schema, runs read queries and can write HTML reports.

Examples:
  tabletalk ask "How many orders were placed last week?"
  tabletalk chat --session sales
  tabletalk history --session sales`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "path to .env file (ignored if missing)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log_level in config)")

	cmd.AddCommand(
		chatCmd(opts),
		askCmd(opts),
		toolsCmd(opts),
		serveMCPCmd(opts),
		historyCmd(opts),
	)

	return cmd
}

// openEngine loads the environment and configuration, installs the logger on
// stderr and builds the engine. The caller must Close the engine.
func (o *rootOptions) openEngine(ctx context.Context, stderr io.Writer) (*engine.Engine, error) {
	if err := loadDotEnv(o.envFile); err != nil {
		return nil, err
	}

	cfg, err := engine.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	lvl, err := engine.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)

	return engine.New(ctx, cfg, engine.WithLogger(log))
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
