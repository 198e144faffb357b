package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// JournalSink persists every record to a TickStore.
type JournalSink struct {
	store domain.TickStore
}

// NewJournalSink creates a JournalSink.
func NewJournalSink(store domain.TickStore) *JournalSink {
	return &JournalSink{store: store}
}

// OnTick saves rec.
func (j *JournalSink) OnTick(ctx context.Context, rec domain.TickRecord) error {
	return j.store.SaveTick(ctx, rec)
}

// BusSink publishes every record as JSON on domain.ChannelTick, and every
// non-skipped execution result on domain.ChannelOrder.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

// OnTick publishes rec.
func (b *BusSink) OnTick(ctx context.Context, rec domain.TickRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("report: marshal tick %d: %w", rec.Seq, err)
	}
	if err := b.bus.Publish(ctx, domain.ChannelTick, payload); err != nil {
		return err
	}

	for _, o := range rec.Outcomes {
		if o.Result.Outcome == domain.OutcomeSkipped || o.Result.Outcome == "" {
			continue
		}
		msg, err := json.Marshal(orderEvent{
			RunID:     rec.RunID,
			Seq:       rec.Seq,
			Timestamp: rec.Timestamp,
			Symbol:    o.Symbol,
			Result:    o.Result,
		})
		if err != nil {
			return fmt.Errorf("report: marshal order %s: %w", o.Symbol, err)
		}
		if err := b.bus.Publish(ctx, domain.ChannelOrder, msg); err != nil {
			return err
		}
	}
	return nil
}

type orderEvent struct {
	RunID     string                 `json:"run_id"`
	Seq       int                    `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Symbol    string                 `json:"symbol"`
	Result    domain.ExecutionResult `json:"result"`
}

// LogSink writes a one-line portfolio summary per tick.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "portfolio"))}
}

// OnTick logs the portfolio after rec.
func (l *LogSink) OnTick(ctx context.Context, rec domain.TickRecord) error {
	view := rec.Portfolio
	held := make(map[string]int, len(view.Positions))
	for sym, p := range view.Positions {
		held[sym] = p.Shares
	}
	l.logger.InfoContext(ctx, "portfolio",
		slog.Int("seq", rec.Seq),
		slog.Time("ts", rec.Timestamp),
		slog.Float64("cash", view.Cash),
		slog.Float64("equity", view.Equity),
		slog.Float64("unrealized_pnl", view.UnrealizedPnL),
		slog.Any("positions", held),
	)
	return nil
}
