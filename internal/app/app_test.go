package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/cache/memory"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
	"github.com/alanyoungcy/tradeloop/internal/platform/mock"
	"github.com/alanyoungcy/tradeloop/internal/portfolio"
	"github.com/alanyoungcy/tradeloop/internal/store/sqlite"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.SQLite.Path = filepath.Join(dir, "journal.db")
	cfg.Report.CSVPath = filepath.Join(dir, "out", "portfolio_timeseries.csv")
	cfg.Report.SummaryDir = filepath.Join(dir, "reports")
	return &cfg
}

func TestMockBacktestEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.Enabled = true
	cfg.Execute = true

	var out bytes.Buffer
	a := New(cfg, discard())
	a.SetOutput(&out)
	require.NoError(t, a.Run(context.Background()))
	a.Close()

	assert.NotEmpty(t, out.String())

	matches, err := filepath.Glob(filepath.Join(cfg.Report.SummaryDir, "backtest_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var s domain.BacktestSummary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 35, s.Steps)
	assert.Equal(t, 0, s.BrokerCalls)
	assert.Equal(t, 100000.0, s.StartCash)
	assert.Equal(t, time.Date(2025, 11, 7, 20, 30, 0, 0, time.UTC), s.End.UTC())

	f, err := os.Open(cfg.Report.CSVPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 36)

	j, err := sqlite.Open(cfg.SQLite.Path)
	require.NoError(t, err)
	defer j.Close()

	saved, err := j.GetSummary(context.Background(), s.RunID)
	require.NoError(t, err)
	assert.Equal(t, s.Steps, saved.Steps)

	ticks, err := j.ListTicks(context.Background(), s.RunID, domain.ListOpts{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, ticks, 35)

	audit, err := j.List(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	events := map[string]bool{}
	for _, e := range audit {
		events[e.Event] = true
	}
	assert.True(t, events[auditRunStarted])
	assert.True(t, events[auditRunFinished])
}

func TestBacktestRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.Enabled = true
	cfg.Backtest.Days = 0

	err := New(cfg, discard()).Run(context.Background())
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.True(t, domain.IsFatal(err))
}

func TestMockLiveRunsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trading.LoopIntervalSec = 1

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	a := New(cfg, discard())
	require.NoError(t, a.Run(ctx))
	a.Close()

	j, err := sqlite.Open(cfg.SQLite.Path)
	require.NoError(t, err)
	defer j.Close()

	audit, err := j.List(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	runID := audit[0].RunID

	ticks, err := j.ListTicks(context.Background(), runID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, ticks)
	assert.Equal(t, domain.ModeLive, ticks[0].Mode)
	assert.False(t, ticks[0].Execute)
}

func TestLiveModeRefusesHeldLock(t *testing.T) {
	cfg := testConfig(t)
	locks := memory.NewLockManager()
	unlock, err := locks.Acquire(context.Background(), "run:live:mock", 0)
	require.NoError(t, err)
	defer unlock()

	deps := &Dependencies{
		BarCache:    memory.NewBarCache(),
		RateLimiter: memory.NewRateLimiter(nil),
		LockManager: locks,
		SignalBus:   memory.NewBus(),
	}
	err = New(cfg, discard()).LiveMode(context.Background(), deps)
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestForceVetoOnlyInMockMode(t *testing.T) {
	at := time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)
	deps := &Dependencies{RateLimiter: memory.NewRateLimiter(nil)}

	tests := []struct {
		runMode string
		vetoed  bool
	}{
		{runMode: "mock", vetoed: true},
		{runMode: "alpaca", vetoed: false},
	}
	for _, tt := range tests {
		t.Run(tt.runMode, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.RunMode = tt.runMode
			cfg.Trading.ForceVeto = "market_closed"

			a := New(cfg, discard())
			broker := mock.NewBroker(cfg.Trading.MockCash, cfg.Trading.MockPrices)
			r := a.newRun("run-veto", domain.ModeLive, portfolio.New(10000), broker, marketdata.Synthetic{}, deps, 0)

			rec, err := r.ticker.Tick(context.Background(), at)
			require.NoError(t, err)
			require.Len(t, rec.Outcomes, len(cfg.Trading.Symbols))
			for _, o := range rec.Outcomes {
				assert.Equal(t, tt.vetoed, o.Proposed.Veto, o.Symbol)
				if tt.vetoed {
					assert.Equal(t, "market closed", o.Proposed.VetoReason, o.Symbol)
				}
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", slog.String("component", "test"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "WARN", line["level"])
}
