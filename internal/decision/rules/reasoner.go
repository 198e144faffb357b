// Package rules is the deterministic reasoning capability: momentum,
// fair-value valuation, a gatekeeping risk role and a weighted coordinator.
package rules

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Params configures the deterministic roles.
type Params struct {
	Symbols       []string
	FairValues    map[string]float64
	MaxShares     int
	TakeProfitPct float64
	StopLossPct   float64
	SellCooldown  time.Duration
	OrderQty      int
	ForceVeto     string
}

func (p Params) allowed(symbol string) bool {
	for _, s := range p.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// Reasoner implements domain.Reasoner with fixed rules. It keeps per-symbol
// price history for momentum, so one Reasoner serves exactly one run.
type Reasoner struct {
	params  Params
	tracker *PriceTracker
	logger  *slog.Logger
}

// compile-time check
var _ domain.Reasoner = (*Reasoner)(nil)

// New creates a Reasoner for one run.
func New(params Params, logger *slog.Logger) *Reasoner {
	if params.OrderQty <= 0 {
		params.OrderQty = 1
	}
	return &Reasoner{
		params:  params,
		tracker: NewPriceTracker(7 * 24 * time.Hour),
		logger:  logger.With(slog.String("component", "rules")),
	}
}

// Market is the momentum role.
func (r *Reasoner) Market(ctx context.Context, in domain.RoleInput) (domain.RoleOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoleOutput{}, err
	}
	price, ok := in.Snapshot.Price(in.Symbol)
	if !ok {
		return domain.RoleOutput{
			Role:       domain.RoleMarket,
			Side:       domain.SideHold,
			Confidence: firstSeenConf,
			Reason:     "market: no price",
		}, nil
	}
	prev, seen := r.tracker.Observe(in.Symbol, price, in.Snapshot.Timestamp)
	return momentum(price, prev, seen, in.Portfolio.Shares(in.Symbol)), nil
}

// Valuation is the fair-value role.
func (r *Reasoner) Valuation(ctx context.Context, in domain.RoleInput, _ domain.RoleOutput) (domain.RoleOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoleOutput{}, err
	}
	price, _ := in.Snapshot.Price(in.Symbol)
	return valuation(r.params, in.Symbol, price, in.Portfolio.Positions[in.Symbol]), nil
}

// Risk is the gatekeeping role; it is the only role that vetoes.
func (r *Reasoner) Risk(ctx context.Context, in domain.RoleInput, market, val domain.RoleOutput) (domain.RoleOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoleOutput{}, err
	}
	price, _ := in.Snapshot.Price(in.Symbol)
	return gatekeeper(r.params, in, price, market, val), nil
}

// Coordinate merges the three prior outputs.
func (r *Reasoner) Coordinate(ctx context.Context, in domain.RoleInput, market, val, risk domain.RoleOutput) (domain.RoleOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoleOutput{}, err
	}
	out := coordinate(r.params, in, market, val, risk)
	r.logger.DebugContext(ctx, "rules: confidence",
		slog.String("symbol", in.Symbol),
		slog.Float64("market", market.Confidence),
		slog.Float64("valuation", val.Confidence),
		slog.Float64("risk", risk.Confidence),
		slog.Float64("final", out.Confidence),
		slog.String("side", string(out.Side)),
	)
	return out, nil
}
