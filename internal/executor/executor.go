// Package executor is the execution gate: it turns resolved actions into
// broker orders, dry-run records or simulated fills, and is the only writer
// of portfolio state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/portfolio"
)

// Rate-limit key for order submission.
const SubmitKey = "executor:submit_order"

// Notification events raised by the gate.
const (
	EventOrderSubmitted = "order_submitted"
	EventOrderRejected  = "order_rejected"
)

// Notifier receives order notifications. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config controls how the gate resolves actions.
type Config struct {
	Mode           domain.Mode
	Execute        bool
	OpenOrderGuard bool
	BrokerTimeout  time.Duration
	RunID          string
}

// Gate resolves one action at a time. Portfolio mutations happen under the
// symbol lock so a fill and its cooldown stamp land together.
type Gate struct {
	cfg    Config
	state  *portfolio.State
	broker domain.Broker
	dedup  *Dedup
	logger *slog.Logger

	limiter  domain.RateLimiter
	notifier Notifier
	audit    domain.AuditStore
}

// NewGate creates a Gate. broker may be nil in backtest mode, where it is
// never called.
func NewGate(cfg Config, state *portfolio.State, broker domain.Broker, logger *slog.Logger) *Gate {
	if cfg.BrokerTimeout <= 0 {
		cfg.BrokerTimeout = 10 * time.Second
	}
	return &Gate{
		cfg:    cfg,
		state:  state,
		broker: broker,
		dedup:  NewDedup(24 * time.Hour),
		logger: logger.With(slog.String("component", "executor")),
	}
}

// SetRateLimiter enables rate limiting of live submissions.
func (g *Gate) SetRateLimiter(l domain.RateLimiter) { g.limiter = l }

// SetNotifier enables order notifications.
func (g *Gate) SetNotifier(n Notifier) { g.notifier = n }

// SetAuditStore enables audit logging of live orders.
func (g *Gate) SetAuditStore(a domain.AuditStore) { g.audit = a }

// Execute resolves action at the snapshot price for the tick at tickTime.
func (g *Gate) Execute(ctx context.Context, action domain.ResolvedAction, price float64, tickTime time.Time) domain.ExecutionResult {
	log := g.logger.With(
		slog.String("symbol", action.Symbol),
		slog.String("side", string(action.Side)),
		slog.Int("qty", action.Quantity),
		slog.Time("tick", tickTime),
	)

	// 1. Nothing to do.
	if action.IsHold() {
		return domain.ExecutionResult{
			Outcome: domain.OutcomeSkipped,
			Reason:  action.Reason,
			Side:    domain.SideHold,
		}
	}

	// 2. Backtest always simulates, whatever Execute says.
	if g.cfg.Mode == domain.ModeBacktest {
		return g.simulate(action, price, tickTime, log)
	}

	// 3. Dry run reports the decision and touches nothing.
	if !g.cfg.Execute {
		log.Info("dry run")
		return domain.ExecutionResult{
			Outcome:  domain.OutcomeDryRun,
			Reason:   fmt.Sprintf("dry run: would %s %d %s (%s)", action.Side, action.Quantity, action.Symbol, action.Reason),
			Side:     action.Side,
			Quantity: action.Quantity,
		}
	}

	// 4. Live submission.
	return g.submit(ctx, action, price, tickTime, log)
}

func (g *Gate) simulate(action domain.ResolvedAction, price float64, tickTime time.Time, log *slog.Logger) domain.ExecutionResult {
	unlock := g.state.LockSymbol(action.Symbol)
	defer unlock()

	err := g.state.ApplyFill(portfolio.Fill{
		Symbol:   action.Symbol,
		Side:     action.Side,
		Quantity: action.Quantity,
		Price:    price,
		At:       tickTime,
	})
	if err != nil {
		log.Warn("simulated fill failed", slog.String("error", err.Error()))
		return domain.ExecutionResult{
			Outcome:   domain.OutcomeRejected,
			Reason:    err.Error(),
			Side:      action.Side,
			Simulated: true,
		}
	}

	return domain.ExecutionResult{
		Outcome:   domain.OutcomeSubmitted,
		OrderID:   fmt.Sprintf("sim-%s-%s-%d", action.Symbol, action.Side, tickTime.Unix()),
		Reason:    "simulated fill",
		Side:      action.Side,
		Quantity:  action.Quantity,
		FillPrice: price,
		Simulated: true,
	}
}

func (g *Gate) submit(ctx context.Context, action domain.ResolvedAction, price float64, tickTime time.Time, log *slog.Logger) domain.ExecutionResult {
	skipped := func(reason string) domain.ExecutionResult {
		log.Info("order skipped", slog.String("reason", reason))
		return domain.ExecutionResult{Outcome: domain.OutcomeSkipped, Reason: reason, Side: action.Side}
	}

	if g.broker == nil {
		return g.rejected(ctx, action, errors.New("broker unavailable"), log)
	}

	unlock := g.state.LockSymbol(action.Symbol)
	defer unlock()

	g.dedup.Cleanup()

	// 4a. One submission per (symbol, side, tick).
	if g.dedup.IsDuplicate(dedupKey(action, tickTime)) {
		return skipped("duplicate_submission")
	}

	// 4b. Open-order guard.
	if g.cfg.OpenOrderGuard {
		exists, err := g.openOrderExists(ctx, action)
		if err != nil {
			log.Warn("open order check failed", slog.String("error", err.Error()))
			return skipped("open_order_check_failed")
		}
		if exists {
			return skipped("open_order_exists")
		}
	}

	// 4c. Rate limit.
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, SubmitKey); err != nil {
			return g.rejected(ctx, action, fmt.Errorf("%w: %v", domain.ErrRateLimited, err), log)
		}
	}

	// 4d. Submit.
	intent := domain.OrderIntent{
		ClientOrderID: uuid.New().String(),
		Symbol:        action.Symbol,
		Side:          action.Side,
		Quantity:      action.Quantity,
		Price:         price,
		TickTime:      tickTime,
	}
	submitCtx, cancel := context.WithTimeout(ctx, g.cfg.BrokerTimeout)
	conf, err := g.broker.SubmitOrder(submitCtx, intent)
	cancel()
	if err != nil {
		return g.rejected(ctx, action, err, log)
	}

	fillPrice := price
	if conf.FillPrice > 0 {
		fillPrice = conf.FillPrice
	}

	result := domain.ExecutionResult{
		Outcome:   domain.OutcomeSubmitted,
		OrderID:   conf.OrderID,
		Reason:    fmt.Sprintf("order accepted (%s)", conf.Status),
		Side:      action.Side,
		Quantity:  action.Quantity,
		FillPrice: fillPrice,
	}

	if err := g.state.ApplyFill(portfolio.Fill{
		Symbol:   action.Symbol,
		Side:     action.Side,
		Quantity: action.Quantity,
		Price:    fillPrice,
		At:       tickTime,
	}); err != nil {
		log.Error("submitted order could not be applied to portfolio",
			slog.String("order_id", conf.OrderID),
			slog.String("error", err.Error()),
		)
		result.Reason = "order accepted; portfolio not updated: " + err.Error()
	}

	log.Info("order submitted",
		slog.String("order_id", conf.OrderID),
		slog.String("status", conf.Status),
		slog.Float64("fill_price", fillPrice),
	)
	g.record(ctx, EventOrderSubmitted, intent, result)
	return result
}

func (g *Gate) rejected(ctx context.Context, action domain.ResolvedAction, err error, log *slog.Logger) domain.ExecutionResult {
	failure := &domain.ExecutionFailure{Symbol: action.Symbol, Side: action.Side, Err: err}
	log.Error("order rejected", slog.String("error", failure.Error()))

	result := domain.ExecutionResult{
		Outcome:  domain.OutcomeRejected,
		Reason:   err.Error(),
		Side:     action.Side,
		Quantity: action.Quantity,
	}
	g.record(ctx, EventOrderRejected, domain.OrderIntent{
		Symbol:   action.Symbol,
		Side:     action.Side,
		Quantity: action.Quantity,
	}, result)
	return result
}

func (g *Gate) openOrderExists(ctx context.Context, action domain.ResolvedAction) (bool, error) {
	listCtx, cancel := context.WithTimeout(ctx, g.cfg.BrokerTimeout)
	defer cancel()

	orders, err := g.broker.ListOpenOrders(listCtx)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.Symbol == action.Symbol && o.Side == action.Side {
			return true, nil
		}
	}
	return false, nil
}

// record notifies and audits a live order outcome. Failures are logged only.
func (g *Gate) record(ctx context.Context, event string, intent domain.OrderIntent, result domain.ExecutionResult) {
	if g.notifier != nil {
		title := fmt.Sprintf("%s %s %d %s", event, intent.Side, intent.Quantity, intent.Symbol)
		if err := g.notifier.Notify(ctx, event, title, result.Reason); err != nil {
			g.logger.WarnContext(ctx, "executor: notify failed", slog.String("error", err.Error()))
		}
	}
	if g.audit != nil {
		detail := map[string]any{
			"symbol":          intent.Symbol,
			"side":            string(intent.Side),
			"quantity":        intent.Quantity,
			"client_order_id": intent.ClientOrderID,
			"order_id":        result.OrderID,
			"fill_price":      result.FillPrice,
			"reason":          result.Reason,
		}
		if err := g.audit.Log(ctx, g.cfg.RunID, event, detail); err != nil {
			g.logger.WarnContext(ctx, "executor: audit log failed", slog.String("error", err.Error()))
		}
	}
}

func dedupKey(action domain.ResolvedAction, tickTime time.Time) string {
	return fmt.Sprintf("%s|%s|%d", action.Symbol, action.Side, tickTime.UnixNano())
}
