package domain

import "context"

// RoleInput is what every reasoning role sees for one symbol.
type RoleInput struct {
	Snapshot   MarketSnapshot
	Symbol     string
	MarketOpen bool
	Portfolio  PortfolioView
}

// Reasoner is the external reasoning capability, one method per role. Roles
// are called in declaration order; each later role sees the earlier outputs.
type Reasoner interface {
	Market(ctx context.Context, in RoleInput) (RoleOutput, error)
	Valuation(ctx context.Context, in RoleInput, market RoleOutput) (RoleOutput, error)
	Risk(ctx context.Context, in RoleInput, market, valuation RoleOutput) (RoleOutput, error)
	Coordinate(ctx context.Context, in RoleInput, market, valuation, risk RoleOutput) (RoleOutput, error)
}
