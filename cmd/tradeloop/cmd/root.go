// Package cmd holds the tradeloop CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradeloop/internal/app"
	"github.com/alanyoungcy/tradeloop/internal/config"
)

const defaultConfigPath = "config.toml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tradeloop",
	Short: "Risk-gated trading decision loop with deterministic backtests",
	Long: `tradeloop drives repeated trading decisions for a small set of symbols.

Every tick it takes a market snapshot, runs the decision roles, applies the
risk envelope (cooldowns, share caps, position percent, cash) and then either
submits, dry-runs or simulates the order.

Settings come from a TOML or YAML file, a .env file and the environment
(RUN_MODE, EXECUTE, BACKTEST, RISK_MAX_SHARES, ...).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to a .toml or .yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads the config file and environment. A missing file is only
// an error when the path was given explicitly.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// runApp validates cfg and runs the application until it finishes or a
// signal arrives.
func runApp(cfg *config.Config) error {
	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return nil
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return err
	}
	return nil
}
