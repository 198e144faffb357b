package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/backtest"
	"github.com/alanyoungcy/tradeloop/internal/decision"
	"github.com/alanyoungcy/tradeloop/internal/decision/rules"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/executor"
	"github.com/alanyoungcy/tradeloop/internal/feed"
	"github.com/alanyoungcy/tradeloop/internal/id"
	"github.com/alanyoungcy/tradeloop/internal/loop"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
	"github.com/alanyoungcy/tradeloop/internal/notify"
	"github.com/alanyoungcy/tradeloop/internal/platform/alpaca"
	"github.com/alanyoungcy/tradeloop/internal/platform/mock"
	"github.com/alanyoungcy/tradeloop/internal/portfolio"
	"github.com/alanyoungcy/tradeloop/internal/report"
	"github.com/alanyoungcy/tradeloop/internal/risk"
	"github.com/alanyoungcy/tradeloop/internal/server"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/server/ws"
)

// Audit events written by the app.
const (
	auditRunStarted  = "run.started"
	auditRunFinished = "run.finished"
)

// run is everything one tick loop owns.
type run struct {
	id        string
	mode      domain.Mode
	startedAt time.Time
	state     *portfolio.State
	ticker    *loop.Ticker
	driver    *loop.Driver
}

// LiveMode ticks on the wall clock until ctx is cancelled. It takes the run
// lock so two live loops never trade the same account.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	broker, err := a.newBroker()
	if err != nil {
		return err
	}
	source, err := a.snapshotSource(deps, broker)
	if err != nil {
		return err
	}

	acct, err := a.verify(ctx, broker, source, time.Now().UTC())
	if err != nil {
		return err
	}

	unlock, err := deps.LockManager.Acquire(ctx, "run:live:"+a.cfg.RunMode, a.cfg.Redis.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another live run holds the lock: %w", err)
		}
		return fmt.Errorf("app: acquire run lock: %w", err)
	}
	defer unlock()

	state := portfolio.New(acct.Cash)
	if err := a.seedPositions(ctx, broker, state); err != nil {
		return err
	}

	r := a.newRun(id.New(), domain.ModeLive, state, broker, source, deps, time.Second)
	csv, err := a.attachSinks(r, deps)
	if err != nil {
		return err
	}
	defer csv.Close()
	r.driver = loop.NewDriver(loop.NewWallClock(a.cfg.LoopInterval()), r.ticker, a.logger)

	a.started(ctx, r, deps)

	g, gctx := errgroup.WithContext(ctx)
	a.startHTTPServer(gctx, g, r, deps)
	a.startTradeStream(gctx, g, source)
	g.Go(func() error {
		err := r.driver.Run(gctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	err = g.Wait()

	a.finished(context.WithoutCancel(ctx), r, deps, nil)
	return err
}

// BacktestMode replays the configured trading days on a cursor clock, then
// persists, renders, archives and announces the summary. Orders are only
// simulated; the broker is wrapped so the summary can prove it was never
// called during the replay.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	start, err := a.cfg.BacktestStart()
	if err != nil {
		return &domain.ConfigError{Problems: []string{err.Error()}}
	}
	times := backtest.Timestamps(start, a.cfg.Backtest.Days, a.cfg.Backtest.StepMinutes)

	raw, err := a.newBroker()
	if err != nil {
		return err
	}
	source, err := a.snapshotSource(deps, raw)
	if err != nil {
		return err
	}
	if _, err := a.verify(ctx, raw, source, times[0]); err != nil {
		return err
	}
	broker := backtest.NewCountingBroker(raw)

	state := portfolio.New(a.cfg.Backtest.InitialCash)
	r := a.newRun(id.At(start), domain.ModeBacktest, state, broker, source, deps, 0)
	csv, err := a.attachSinks(r, deps)
	if err != nil {
		return err
	}
	defer csv.Close()

	summarizer := backtest.NewSummarizer(r.id, start, a.cfg.Backtest.Days, a.cfg.Backtest.StepMinutes,
		a.cfg.Backtest.InitialCash, a.cfg.Trading.Symbols)
	summarizer.SetBroker(broker)
	r.ticker.AddSink(summarizer)

	var records recordSink
	if deps.Archiver != nil {
		r.ticker.AddSink(&records)
	}

	r.driver = loop.NewDriver(loop.NewCursorClock(times), r.ticker, a.logger)
	a.started(ctx, r, deps)

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	g, gctx := errgroup.WithContext(srvCtx)
	a.startHTTPServer(gctx, g, r, deps)

	runErr := r.driver.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		stopServer()
		_ = g.Wait()
		return fmt.Errorf("app: backtest: %w", runErr)
	}

	// A cancelled replay still reports what it covered.
	bg := context.WithoutCancel(ctx)
	if err := csv.Close(); err != nil {
		a.logger.WarnContext(ctx, "close csv failed", slog.String("error", err.Error()))
	}
	summary := summarizer.Summary()
	err = a.finishBacktest(bg, r, deps, summary, records.all(), csv.Path())

	stopServer()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	a.finished(bg, r, deps, &summary)
	if err != nil {
		return err
	}
	return runErr
}

func (a *App) finishBacktest(ctx context.Context, r *run, deps *Dependencies, s domain.BacktestSummary, records []domain.TickRecord, csvPath string) error {
	if deps.Journal != nil {
		if err := deps.Journal.SaveSummary(ctx, s); err != nil {
			a.logger.WarnContext(ctx, "save summary failed", slog.String("error", err.Error()))
		}
	}

	path, err := report.WriteSummary(a.cfg.Report.SummaryDir, s)
	if err != nil {
		return fmt.Errorf("app: write summary: %w", err)
	}
	fmt.Fprintln(a.out, report.RenderSummary(s))

	if deps.Archiver != nil {
		keys, err := deps.Archiver.ArchiveRun(ctx, r.id, records, &s, csvPath, path)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "run archived", slog.Any("keys", keys))
		}
	}

	a.notify(ctx, deps, notify.EventBacktestFinished,
		fmt.Sprintf("backtest %s finished", r.id),
		fmt.Sprintf("steps=%d end_value=%.2f pnl=%.2f buys=%d sells=%d broker_calls=%d",
			s.Steps, s.EndValue, s.PnL, s.NumBuys, s.NumSells, s.BrokerCalls))
	return nil
}

// newRun builds the decision pipeline, execution gate and ticker for one run.
func (a *App) newRun(runID string, mode domain.Mode, state *portfolio.State, broker domain.Broker, source domain.SnapshotSource, deps *Dependencies, retry time.Duration) *run {
	logger := a.logger.With(slog.String("run_id", runID))
	tr := a.cfg.Trading

	// Forced vetoes exercise the gatekeeper offline; a broker run never
	// honours them.
	forceVeto := ""
	if a.cfg.RunMode == "mock" {
		forceVeto = tr.ForceVeto
	} else if tr.ForceVeto != "" {
		logger.Warn("force_veto ignored outside mock mode", slog.String("force_veto", tr.ForceVeto))
	}

	reasoner := rules.New(rules.Params{
		Symbols:       tr.Symbols,
		FairValues:    tr.FairValues,
		MaxShares:     a.cfg.Risk.RiskMaxShares,
		TakeProfitPct: tr.TakeProfitPct,
		StopLossPct:   tr.StopLossPct,
		SellCooldown:  time.Duration(a.cfg.Risk.SellCooldownMinutes) * time.Minute,
		OrderQty:      tr.OrderQty,
		ForceVeto:     forceVeto,
	}, logger)
	pipeline := decision.NewPipeline(reasoner, tr.RoleTimeout.Duration, tr.Workers, logger)

	gate := executor.NewGate(executor.Config{
		Mode:           mode,
		Execute:        a.cfg.Execute,
		OpenOrderGuard: tr.OpenOrderGuard,
		BrokerTimeout:  tr.BrokerTimeout.Duration,
		RunID:          runID,
	}, state, broker, logger)
	gate.SetRateLimiter(deps.RateLimiter)
	if deps.Notifier != nil {
		gate.SetNotifier(deps.Notifier)
	}
	if deps.Journal != nil {
		gate.SetAuditStore(deps.Journal)
	}

	ticker := loop.NewTicker(loop.TickerConfig{
		RunID:      runID,
		Mode:       mode,
		Execute:    a.cfg.Execute,
		Symbols:    tr.Symbols,
		Risk:       risk.FromConfig(a.cfg.Risk),
		RetryDelay: retry,
	}, source, pipeline, state, gate, logger)

	return &run{
		id:        runID,
		mode:      mode,
		startedAt: time.Now().UTC(),
		state:     state,
		ticker:    ticker,
	}
}

// attachSinks registers the reporting sinks shared by both modes and returns
// the CSV sink so the caller can close it.
func (a *App) attachSinks(r *run, deps *Dependencies) (*report.CSVSink, error) {
	csv, err := report.NewCSVSink(a.cfg.Report.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("app: csv report: %w", err)
	}
	r.ticker.AddSink(report.NewLogSink(a.logger))
	r.ticker.AddSink(csv)
	if deps.Journal != nil {
		r.ticker.AddSink(report.NewJournalSink(deps.Journal))
	}
	r.ticker.AddSink(report.NewBusSink(deps.SignalBus))
	return csv, nil
}

// newBroker returns the broker for the configured run mode.
func (a *App) newBroker() (domain.Broker, error) {
	switch a.cfg.RunMode {
	case "mock":
		return mock.NewBroker(a.cfg.Trading.MockCash, a.cfg.Trading.MockPrices), nil
	case "alpaca":
		return alpaca.New(alpaca.Config{
			KeyID:     a.cfg.Alpaca.KeyID,
			SecretKey: a.cfg.Alpaca.SecretKey,
			BaseURL:   a.cfg.Alpaca.BaseURL,
			DataURL:   a.cfg.Alpaca.DataURL,
			Feed:      a.cfg.Alpaca.Feed,
			Timeout:   a.cfg.Trading.BrokerTimeout.Duration,
		}), nil
	default:
		return nil, &domain.ConfigError{Problems: []string{fmt.Sprintf("unknown run_mode %q", a.cfg.RunMode)}}
	}
}

// snapshotSource picks the market data for the mode: synthetic prices for a
// mock replay, cached bars for an Alpaca replay, latest quotes when live.
func (a *App) snapshotSource(deps *Dependencies, broker domain.Broker) (domain.SnapshotSource, error) {
	if a.cfg.Mode() == domain.ModeBacktest {
		if a.cfg.RunMode == "mock" {
			return marketdata.Synthetic{}, nil
		}
		bars, ok := broker.(domain.BarSource)
		if !ok {
			return nil, &domain.ConfigError{Problems: []string{a.cfg.RunMode + ": no historical bars"}}
		}
		return marketdata.NewHistorical(bars, deps.BarCache, a.cfg.Backtest.StepMinutes, a.logger), nil
	}

	quotes, ok := broker.(domain.QuoteSource)
	if !ok {
		return nil, &domain.ConfigError{Problems: []string{a.cfg.RunMode + ": no quote source"}}
	}
	live := marketdata.NewLive(quotes, a.cfg.Trading.QuoteTTL.Duration, a.logger)
	live.SetRateLimiter(deps.RateLimiter)
	if clk, ok := broker.(domain.MarketClock); ok {
		live.SetClock(clk)
	}
	return live, nil
}

// verify checks the broker account and one snapshot before the first tick.
func (a *App) verify(ctx context.Context, broker domain.Broker, source domain.SnapshotSource, at time.Time) (domain.Account, error) {
	vctx, cancel := context.WithTimeout(ctx, a.cfg.Trading.BrokerTimeout.Duration)
	defer cancel()

	acct, err := broker.GetAccount(vctx)
	if err != nil {
		return domain.Account{}, &domain.ConnectivityError{Source: "broker", Err: err}
	}
	snap, err := source.Snapshot(vctx, a.cfg.Trading.Symbols, at)
	if err != nil {
		return domain.Account{}, &domain.ConnectivityError{Source: "market data", Err: err}
	}
	a.logger.InfoContext(ctx, "connectivity verified",
		slog.String("account_status", acct.Status),
		slog.Float64("cash", acct.Cash),
		slog.Int("prices", len(snap.Prices)),
		slog.Bool("market_open", snap.MarketOpen),
	)
	return acct, nil
}

// seedPositions loads existing broker positions into state when the broker
// can list them.
func (a *App) seedPositions(ctx context.Context, broker domain.Broker, state *portfolio.State) error {
	src, ok := broker.(domain.PositionSource)
	if !ok {
		return nil
	}
	positions, err := src.ListPositions(ctx)
	if err != nil {
		return &domain.ConnectivityError{Source: "broker positions", Err: err}
	}
	for _, p := range positions {
		if err := state.Seed(p.Symbol, p.Shares, p.AvgCost); err != nil {
			return fmt.Errorf("app: seed %s: %w", p.Symbol, err)
		}
	}
	return nil
}

func (a *App) started(ctx context.Context, r *run, deps *Dependencies) {
	a.logger.InfoContext(ctx, "run started",
		slog.String("run_id", r.id),
		slog.String("mode", string(r.mode)),
	)
	if deps.Journal != nil {
		_ = deps.Journal.Log(ctx, r.id, auditRunStarted, map[string]any{
			"mode":     string(r.mode),
			"run_mode": a.cfg.RunMode,
			"execute":  a.cfg.Execute,
			"symbols":  a.cfg.Trading.Symbols,
		})
	}
	a.publishStatus(ctx, r, deps)
	a.notify(ctx, deps, notify.EventRunStarted,
		fmt.Sprintf("%s run %s started", r.mode, r.id),
		fmt.Sprintf("run_mode=%s execute=%t symbols=%v", a.cfg.RunMode, a.cfg.Execute, a.cfg.Trading.Symbols))
}

func (a *App) finished(ctx context.Context, r *run, deps *Dependencies, s *domain.BacktestSummary) {
	detail := map[string]any{"ticks": r.driver.Ticks()}
	if s != nil {
		detail["end_value"] = s.EndValue
		detail["pnl"] = s.PnL
	}
	if deps.Journal != nil {
		_ = deps.Journal.Log(ctx, r.id, auditRunFinished, detail)
	}
	a.publishStatus(ctx, r, deps)
	a.logger.InfoContext(ctx, "run finished", slog.String("run_id", r.id), slog.Int64("ticks", r.driver.Ticks()))
}

func (a *App) publishStatus(ctx context.Context, r *run, deps *Dependencies) {
	payload, err := json.Marshal(a.runInfo(r).Status())
	if err != nil {
		return
	}
	_ = deps.SignalBus.Publish(ctx, domain.ChannelStatus, payload)
}

func (a *App) notify(ctx context.Context, deps *Dependencies, event, title, message string) {
	if deps.Notifier == nil {
		return
	}
	if err := deps.Notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// startHTTPServer runs the status API and WebSocket hub on g when enabled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, r *run, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}
	info := a.runInfo(r)

	health := handler.NewHealthHandler(a.logger)
	for name, check := range deps.Checks {
		health.AddCheck(name, check)
	}
	handlers := server.Handlers{
		Health: health,
		Status: handler.NewStatusHandler(info),
	}
	if deps.Journal != nil {
		handlers.Journal = handler.NewJournalHandler(deps.Journal, r.id, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, func() any { return info.Status() }, a.logger)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.APILimiter,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startTradeStream pushes streamed trade prices into the live source. A
// stream failure is logged and the loop keeps polling quotes.
func (a *App) startTradeStream(ctx context.Context, g *errgroup.Group, source domain.SnapshotSource) {
	live, ok := source.(*marketdata.Live)
	if !ok || a.cfg.RunMode != "alpaca" || !a.cfg.Alpaca.Stream {
		return
	}
	stream := feed.NewTradeStream(feed.Config{
		URL:       a.cfg.Alpaca.StreamEndpoint(),
		KeyID:     a.cfg.Alpaca.KeyID,
		SecretKey: a.cfg.Alpaca.SecretKey,
		Symbols:   a.cfg.Trading.Symbols,
	}, func(t feed.Trade) {
		live.PushPrice(t.Symbol, t.Price)
	}, a.logger)

	g.Go(func() error {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("trade stream stopped, using quote polling", slog.String("error", err.Error()))
		}
		return nil
	})
}

func (a *App) runInfo(r *run) *runInfo {
	return &runInfo{r: r, runMode: a.cfg.RunMode, execute: a.cfg.Execute, symbols: a.cfg.Trading.Symbols}
}

// runInfo exposes a run to the status API.
type runInfo struct {
	r       *run
	runMode string
	execute bool
	symbols []string
}

var _ handler.RunInfo = (*runInfo)(nil)

func (i *runInfo) Status() handler.RunStatus {
	st := handler.RunStatus{
		RunID:     i.r.id,
		Mode:      i.r.mode,
		RunMode:   i.runMode,
		Execute:   i.execute,
		State:     loop.StateIdle.String(),
		Symbols:   i.symbols,
		StartedAt: i.r.startedAt,
	}
	if d := i.r.driver; d != nil {
		st.State = d.State().String()
		st.Ticks = d.Ticks()
	}
	return st
}

func (i *runInfo) Portfolio() domain.PortfolioView {
	return i.r.state.View(time.Now().UTC())
}

// recordSink keeps every record for the end-of-run archive.
type recordSink struct {
	mu   sync.Mutex
	recs []domain.TickRecord
}

func (s *recordSink) OnTick(_ context.Context, rec domain.TickRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *recordSink) all() []domain.TickRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs
}
