package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestBrokerFillsAtTablePrice(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(1000, nil)

	conf, err := b.SubmitOrder(ctx, domain.OrderIntent{Symbol: "PLTK", Side: domain.SideBuy, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, "mock-1", conf.OrderID)
	assert.Equal(t, 20.0, conf.FillPrice)
	assert.Equal(t, 5, b.Position("PLTK"))

	acct, err := b.GetAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900.0, acct.Cash)
	assert.Equal(t, 1000.0, acct.Equity)
	assert.Equal(t, 2, b.Calls())
}

func TestBrokerRejects(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(100, nil)

	_, err := b.SubmitOrder(ctx, domain.OrderIntent{Symbol: "NFLX", Side: domain.SideBuy, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = b.SubmitOrder(ctx, domain.OrderIntent{Symbol: "PLTR", Side: domain.SideSell, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = b.SubmitOrder(ctx, domain.OrderIntent{Symbol: "AAPL", Side: domain.SideBuy, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	b.SubmitErr = errors.New("down")
	_, err = b.SubmitOrder(ctx, domain.OrderIntent{Symbol: "PLTK", Side: domain.SideBuy, Quantity: 1})
	require.EqualError(t, err, "down")
	assert.Len(t, b.Submitted(), 4)
}

func TestBrokerOpenOrdersAndQuotes(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(0, map[string]float64{"PLTR": 42})
	b.AddOpenOrder(domain.OpenOrder{ID: "o1", Symbol: "PLTR", Side: domain.SideBuy})

	orders, err := b.ListOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	p, err := b.LatestPrice(ctx, "PLTR")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p)

	_, err = b.LatestPrice(ctx, "NFLX")
	require.ErrorIs(t, err, domain.ErrNoPrice)
}
