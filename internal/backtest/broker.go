package backtest

import (
	"context"
	"sync/atomic"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// CountingBroker wraps a broker and counts every call made through it. A
// replay wires its execution gate through one so the summary can prove no
// order reached the broker.
type CountingBroker struct {
	inner domain.Broker
	calls atomic.Int64
}

var _ domain.Broker = (*CountingBroker)(nil)

// NewCountingBroker wraps inner, which may be nil.
func NewCountingBroker(inner domain.Broker) *CountingBroker {
	return &CountingBroker{inner: inner}
}

// GetAccount forwards to the wrapped broker.
func (b *CountingBroker) GetAccount(ctx context.Context) (domain.Account, error) {
	b.calls.Add(1)
	if b.inner == nil {
		return domain.Account{}, domain.ErrBrokerUnavailable
	}
	return b.inner.GetAccount(ctx)
}

// SubmitOrder forwards to the wrapped broker.
func (b *CountingBroker) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderConfirmation, error) {
	b.calls.Add(1)
	if b.inner == nil {
		return domain.OrderConfirmation{}, domain.ErrBrokerUnavailable
	}
	return b.inner.SubmitOrder(ctx, intent)
}

// ListOpenOrders forwards to the wrapped broker.
func (b *CountingBroker) ListOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	b.calls.Add(1)
	if b.inner == nil {
		return nil, domain.ErrBrokerUnavailable
	}
	return b.inner.ListOpenOrders(ctx)
}

// Calls returns the number of calls received.
func (b *CountingBroker) Calls() int {
	return int(b.calls.Load())
}
