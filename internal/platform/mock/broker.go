// Package mock provides an in-process broker used by the offline run mode
// and by tests. It fills every order immediately at a fixed price table and
// records each call it receives.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// DefaultPrices is the fixed price table of the mock market.
var DefaultPrices = map[string]float64{
	"PLTR": 100.0,
	"NFLX": 200.0,
	"PLTK": 20.0,
}

var _ domain.Broker = (*Broker)(nil)
var _ domain.QuoteSource = (*Broker)(nil)

// Broker is a thread-safe fake broker.
type Broker struct {
	mu        sync.Mutex
	prices    map[string]float64
	cash      float64
	positions map[string]int
	open      []domain.OpenOrder
	submitted []domain.OrderIntent
	calls     int
	seq       int

	// SubmitErr, when set, is returned by SubmitOrder instead of filling.
	SubmitErr error
	// OpenOrdersErr, when set, is returned by ListOpenOrders.
	OpenOrdersErr error
}

// NewBroker creates a mock broker with the given cash and price table. A nil
// table uses DefaultPrices.
func NewBroker(cash float64, prices map[string]float64) *Broker {
	if prices == nil {
		prices = DefaultPrices
	}
	table := make(map[string]float64, len(prices))
	for k, v := range prices {
		table[k] = v
	}
	return &Broker{
		prices:    table,
		cash:      cash,
		positions: make(map[string]int),
	}
}

// GetAccount returns the mock account.
func (b *Broker) GetAccount(_ context.Context) (domain.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++

	equity := b.cash
	for sym, qty := range b.positions {
		equity += float64(qty) * b.prices[sym]
	}
	return domain.Account{Status: "ACTIVE", Cash: b.cash, Equity: equity}, nil
}

// SubmitOrder fills intent at the table price.
func (b *Broker) SubmitOrder(_ context.Context, intent domain.OrderIntent) (domain.OrderConfirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.submitted = append(b.submitted, intent)

	if b.SubmitErr != nil {
		return domain.OrderConfirmation{}, b.SubmitErr
	}
	price, ok := b.prices[intent.Symbol]
	if !ok {
		return domain.OrderConfirmation{}, fmt.Errorf("mock: unsupported symbol %s: %w", intent.Symbol, domain.ErrInvalidOrder)
	}
	if intent.Quantity <= 0 {
		return domain.OrderConfirmation{}, fmt.Errorf("mock: qty must be > 0: %w", domain.ErrInvalidOrder)
	}

	cost := price * float64(intent.Quantity)
	switch intent.Side {
	case domain.SideBuy:
		if cost > b.cash {
			return domain.OrderConfirmation{}, fmt.Errorf("mock: insufficient cash: %w", domain.ErrInvalidOrder)
		}
		b.cash -= cost
		b.positions[intent.Symbol] += intent.Quantity
	case domain.SideSell:
		if intent.Quantity > b.positions[intent.Symbol] {
			return domain.OrderConfirmation{}, fmt.Errorf("mock: insufficient position: %w", domain.ErrInvalidOrder)
		}
		b.cash += cost
		b.positions[intent.Symbol] -= intent.Quantity
	default:
		return domain.OrderConfirmation{}, fmt.Errorf("mock: side %q: %w", intent.Side, domain.ErrInvalidOrder)
	}

	b.seq++
	return domain.OrderConfirmation{
		OrderID:   fmt.Sprintf("mock-%d", b.seq),
		Status:    "filled",
		FillPrice: price,
	}, nil
}

// ListOpenOrders returns the configured open orders.
func (b *Broker) ListOpenOrders(_ context.Context) ([]domain.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.OpenOrdersErr != nil {
		return nil, b.OpenOrdersErr
	}
	out := make([]domain.OpenOrder, len(b.open))
	copy(out, b.open)
	return out, nil
}

// LatestPrice returns the table price for symbol.
func (b *Broker) LatestPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("mock: %s: %w", symbol, domain.ErrNoPrice)
	}
	return p, nil
}

// AddOpenOrder registers a working order returned by ListOpenOrders.
func (b *Broker) AddOpenOrder(o domain.OpenOrder) {
	b.mu.Lock()
	b.open = append(b.open, o)
	b.mu.Unlock()
}

// Submitted returns a copy of every intent received by SubmitOrder.
func (b *Broker) Submitted() []domain.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderIntent, len(b.submitted))
	copy(out, b.submitted)
	return out
}

// Calls returns the number of broker API calls received. Price lookups are
// not counted.
func (b *Broker) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Position returns the mock position in symbol.
func (b *Broker) Position(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol]
}
