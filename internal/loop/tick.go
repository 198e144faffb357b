package loop

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/portfolio"
	"github.com/alanyoungcy/tradeloop/internal/risk"
)

// Decider proposes one action per snapshot symbol. *decision.Pipeline
// satisfies it.
type Decider interface {
	Decide(ctx context.Context, snap domain.MarketSnapshot, view domain.PortfolioView) map[string]domain.ProposedAction
}

// Executor resolves one risk-checked action. *executor.Gate satisfies it.
type Executor interface {
	Execute(ctx context.Context, action domain.ResolvedAction, price float64, tickTime time.Time) domain.ExecutionResult
}

// Sink consumes finished tick records.
type Sink interface {
	OnTick(ctx context.Context, rec domain.TickRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec domain.TickRecord) error

// OnTick calls f.
func (f SinkFunc) OnTick(ctx context.Context, rec domain.TickRecord) error { return f(ctx, rec) }

// TickerConfig carries the run-scoped settings of a Ticker.
type TickerConfig struct {
	RunID      string
	Mode       domain.Mode
	Execute    bool
	Symbols    []string
	Risk       risk.Config
	RetryDelay time.Duration
}

// Ticker is the body shared by live and backtest runs: snapshot, decide,
// risk, execute, record.
type Ticker struct {
	cfg      TickerConfig
	source   domain.SnapshotSource
	decider  Decider
	state    *portfolio.State
	executor Executor
	sinks    []Sink
	logger   *slog.Logger
	seq      int
}

// NewTicker creates a Ticker.
func NewTicker(cfg TickerConfig, source domain.SnapshotSource, decider Decider, state *portfolio.State, executor Executor, logger *slog.Logger) *Ticker {
	return &Ticker{
		cfg:      cfg,
		source:   source,
		decider:  decider,
		state:    state,
		executor: executor,
		logger:   logger.With(slog.String("component", "tick"), slog.String("run_id", cfg.RunID)),
	}
}

// AddSink registers a record consumer. Sinks run in registration order.
func (t *Ticker) AddSink(s Sink) { t.sinks = append(t.sinks, s) }

// Tick runs one tick at at. A snapshot that fails twice turns the tick into
// a skipped record; the only error returned is ctx cancellation before any
// decision was made.
func (t *Ticker) Tick(ctx context.Context, at time.Time) (domain.TickRecord, error) {
	t.seq++
	rec := domain.TickRecord{
		RunID:     t.cfg.RunID,
		Seq:       t.seq,
		Timestamp: at,
		Mode:      t.cfg.Mode,
		Execute:   t.cfg.Execute,
	}
	log := t.logger.With(slog.Int("seq", t.seq), slog.Time("at", at))

	snap, err := t.snapshot(ctx, at)
	if err != nil {
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
		log.Warn("tick skipped", slog.String("error", err.Error()))
		rec.Skipped = true
		rec.SkipReason = err.Error()
		rec.Portfolio = t.state.View(at)
		t.emit(ctx, rec)
		return rec, nil
	}

	t.state.Mark(snap.Prices)
	proposals := t.decider.Decide(ctx, snap, t.state.View(at))

	// Executions are sequential in configured symbol order and are not
	// interrupted by cancellation once started.
	execCtx := context.WithoutCancel(ctx)
	for _, sym := range t.cfg.Symbols {
		if ctx.Err() != nil {
			rec.SkipReason = "interrupted"
			break
		}
		action, ok := proposals[sym]
		if !ok {
			action = domain.HoldAction(sym, "no proposal")
		}
		price, _ := snap.Price(sym)

		resolved := risk.Apply(action, t.state.View(at), t.cfg.Risk, price, at)
		if v, clamped := resolved.Violation(); clamped {
			log.Info("risk clamp",
				slog.String("symbol", v.Symbol),
				slog.String("side", string(v.Side)),
				slog.Int("requested", v.Requested),
				slog.Int("allowed", v.Allowed),
				slog.String("reason", v.Reason),
			)
		}

		result := t.executor.Execute(execCtx, resolved, price, at)
		log.Info("decision",
			slog.String("symbol", sym),
			slog.String("proposed", string(action.Side)),
			slog.String("resolved", string(resolved.Side)),
			slog.Int("qty", resolved.Quantity),
			slog.String("outcome", string(result.Outcome)),
			slog.String("reason", result.Reason),
		)
		rec.Outcomes = append(rec.Outcomes, domain.SymbolOutcome{
			Symbol:   sym,
			Price:    price,
			Proposed: action,
			Resolved: resolved,
			Result:   result,
		})
	}

	rec.Portfolio = t.state.View(at)
	t.emit(execCtx, rec)
	return rec, nil
}

// snapshot fetches the tick snapshot, retrying once.
func (t *Ticker) snapshot(ctx context.Context, at time.Time) (domain.MarketSnapshot, error) {
	snap, err := t.source.Snapshot(ctx, t.cfg.Symbols, at)
	if err == nil {
		return snap, nil
	}
	t.logger.Warn("tick: snapshot failed, retrying", slog.String("error", err.Error()))

	if t.cfg.RetryDelay > 0 {
		timer := time.NewTimer(t.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.MarketSnapshot{}, ctx.Err()
		case <-timer.C:
		}
	}
	snap, err = t.source.Snapshot(ctx, t.cfg.Symbols, at)
	if err != nil {
		return domain.MarketSnapshot{}, &domain.ConnectivityError{Source: "snapshot", Err: err}
	}
	return snap, nil
}

func (t *Ticker) emit(ctx context.Context, rec domain.TickRecord) {
	for _, s := range t.sinks {
		if err := s.OnTick(ctx, rec); err != nil {
			t.logger.WarnContext(ctx, "tick: sink failed", slog.Int("seq", rec.Seq), slog.String("error", err.Error()))
		}
	}
}
