// Package app provides the top-level lifecycle of a tradeloop run. It wires
// the configured infrastructure, builds the tick loop for the selected mode
// and blocks until the run ends or the context is cancelled.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// SetOutput redirects the rendered backtest summary (stdout by default).
func (a *App) SetOutput(w io.Writer) { a.out = w }

// Run wires dependencies, then runs the live loop or the backtest replay
// depending on the configuration. Startup failures are returned as
// *domain.ConfigError or *domain.ConnectivityError.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	mode := a.cfg.Mode()
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", string(mode)),
		slog.String("run_mode", a.cfg.RunMode),
		slog.Bool("execute", a.cfg.Execute),
		slog.Any("symbols", a.cfg.Trading.Symbols),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case domain.ModeBacktest:
		return a.BacktestMode(ctx, deps)
	default:
		return a.LiveMode(ctx, deps)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewLogger returns a JSON slog logger at level (debug, info, warn, error).
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
