// Package decision turns a market snapshot into one proposed action per
// symbol by calling the reasoning roles in a fixed order.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Pipeline orchestrates the reasoning roles for every symbol of a tick.
// Symbols are evaluated concurrently and independently; a failure in one
// symbol's path degrades only that symbol to hold.
type Pipeline struct {
	reasoner    domain.Reasoner
	roleTimeout time.Duration
	workers     int
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. workers bounds concurrent symbol
// evaluations; roleTimeout bounds each role call.
func NewPipeline(reasoner domain.Reasoner, roleTimeout time.Duration, workers int, logger *slog.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		reasoner:    reasoner,
		roleTimeout: roleTimeout,
		workers:     workers,
		logger:      logger.With(slog.String("component", "decision")),
	}
}

// Decide returns a proposed action for every symbol in the snapshot. It never
// returns an error: role failures become holds carrying a pipeline_error
// reason.
func (p *Pipeline) Decide(ctx context.Context, snap domain.MarketSnapshot, view domain.PortfolioView) map[string]domain.ProposedAction {
	results := make([]domain.ProposedAction, len(snap.Symbols))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, symbol := range snap.Symbols {
		g.Go(func() error {
			results[i] = p.decideSymbol(ctx, snap, view, symbol)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.ProposedAction, len(results))
	for _, a := range results {
		out[a.Symbol] = a
	}
	return out
}

func (p *Pipeline) decideSymbol(ctx context.Context, snap domain.MarketSnapshot, view domain.PortfolioView, symbol string) domain.ProposedAction {
	if _, ok := snap.Price(symbol); !ok {
		return domain.HoldAction(symbol, "no price")
	}

	in := domain.RoleInput{
		Snapshot:   snap,
		Symbol:     symbol,
		MarketOpen: snap.MarketOpen,
		Portfolio:  view,
	}

	market, err := p.call(ctx, symbol, domain.RoleMarket, func(ctx context.Context) (domain.RoleOutput, error) {
		return p.reasoner.Market(ctx, in)
	})
	if err != nil {
		return p.failed(ctx, symbol, domain.RoleMarket, err)
	}

	valuation, err := p.call(ctx, symbol, domain.RoleValuation, func(ctx context.Context) (domain.RoleOutput, error) {
		return p.reasoner.Valuation(ctx, in, market)
	})
	if err != nil {
		return p.failed(ctx, symbol, domain.RoleValuation, err)
	}

	risk, err := p.call(ctx, symbol, domain.RoleRisk, func(ctx context.Context) (domain.RoleOutput, error) {
		return p.reasoner.Risk(ctx, in, market, valuation)
	})
	if err != nil {
		return p.failed(ctx, symbol, domain.RoleRisk, err)
	}

	coord, err := p.call(ctx, symbol, domain.RoleCoordinator, func(ctx context.Context) (domain.RoleOutput, error) {
		return p.reasoner.Coordinate(ctx, in, market, valuation, risk)
	})
	if err != nil {
		return p.failed(ctx, symbol, domain.RoleCoordinator, err)
	}

	return merge(symbol, market, valuation, risk, coord)
}

// merge builds the proposed action. A risk veto always wins over the
// coordinator.
func merge(symbol string, market, valuation, risk, coord domain.RoleOutput) domain.ProposedAction {
	action := domain.ProposedAction{
		Symbol:     symbol,
		Side:       coord.Side,
		Quantity:   coord.Quantity,
		Confidence: coord.Confidence,
		Reason:     coord.Reason,
		Market:     market,
		Valuation:  valuation,
		Risk:       risk,
	}
	if action.Side == domain.SideHold {
		action.Quantity = 0
	}
	if risk.Veto {
		action.Veto = true
		action.VetoReason = risk.Reason
		if action.Side != domain.SideHold {
			action.Reason = fmt.Sprintf("risk veto: %s | coordinator wanted %s %d", risk.Reason, action.Side, action.Quantity)
		}
		action.Side = domain.SideHold
		action.Quantity = 0
	}
	return action
}

// call runs one role under the role timeout. A role that ignores its context
// is abandoned when the timeout fires.
func (p *Pipeline) call(ctx context.Context, symbol, role string, fn func(context.Context) (domain.RoleOutput, error)) (domain.RoleOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.roleTimeout)
	defer cancel()

	type result struct {
		out domain.RoleOutput
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := fn(ctx)
		ch <- result{out, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		return domain.RoleOutput{}, &domain.ReasoningFailure{Symbol: symbol, Role: role, Err: res.err}
	}
	if res.out.Role == "" {
		res.out.Role = role
	}
	if err := res.out.Validate(); err != nil {
		return domain.RoleOutput{}, &domain.ReasoningFailure{Symbol: symbol, Role: role, Err: err}
	}
	return res.out, nil
}

func (p *Pipeline) failed(ctx context.Context, symbol, role string, err error) domain.ProposedAction {
	cause := err
	var rf *domain.ReasoningFailure
	if errors.As(err, &rf) {
		cause = rf.Err
	}
	p.logger.WarnContext(ctx, "decision: role failed",
		slog.String("symbol", symbol),
		slog.String("role", role),
		slog.String("error", err.Error()),
	)
	action := domain.HoldAction(symbol, fmt.Sprintf("pipeline_error: %s: %v", role, cause))
	action.Failed = true
	return action
}
