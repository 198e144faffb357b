package domain

import (
	"context"
	"time"
)

// OrderIntent is an approved order between the risk gate and the execution
// gate. It does not outlive the tick.
type OrderIntent struct {
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      int       `json:"quantity"`
	Price         float64   `json:"price"` // decision-time price
	TickTime      time.Time `json:"tick_time"`
}

// OrderConfirmation is the broker's acknowledgement of a submitted order.
type OrderConfirmation struct {
	OrderID   string
	Status    string
	FillPrice float64 // zero when the broker did not report one
}

// OpenOrder is a working order at the broker.
type OpenOrder struct {
	ID     string
	Symbol string
	Side   Side
	Status string
}

// Account is the broker account summary.
type Account struct {
	Status string
	Cash   float64
	Equity float64
}

// Broker is the order-routing capability.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	SubmitOrder(ctx context.Context, intent OrderIntent) (OrderConfirmation, error)
	ListOpenOrders(ctx context.Context) ([]OpenOrder, error)
}

// Outcome tags an execution result.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomeRejected  Outcome = "rejected"
	OutcomeSkipped   Outcome = "skipped"
)

// ExecutionResult is what the execution gate did with a resolved action.
type ExecutionResult struct {
	Outcome   Outcome `json:"outcome"`
	OrderID   string  `json:"order_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Side      Side    `json:"side"`
	Quantity  int     `json:"quantity"`
	FillPrice float64 `json:"fill_price,omitempty"`
	Simulated bool    `json:"simulated,omitempty"`
}

// Filled reports whether the result changed portfolio state.
func (r ExecutionResult) Filled() bool {
	return r.Outcome == OutcomeSubmitted && r.Quantity > 0
}

// PositionSource lists the positions currently held at the broker. Live runs
// use it to seed portfolio state at startup.
type PositionSource interface {
	ListPositions(ctx context.Context) ([]Position, error)
}
