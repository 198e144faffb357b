package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type apiAccount struct {
	Status string `json:"status"`
	Cash   string `json:"cash"`
	Equity string `json:"equity"`
}

type apiOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type apiOrder struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Status         string  `json:"status"`
	FilledAvgPrice *string `json:"filled_avg_price"`
}

type apiPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

type apiClock struct {
	IsOpen bool `json:"is_open"`
}

// GetAccount returns the account summary. Startup uses it to verify
// credentials.
func (c *Client) GetAccount(ctx context.Context) (domain.Account, error) {
	var a apiAccount
	if err := do(ctx, c.trading.R(), http.MethodGet, "/v2/account", &a); err != nil {
		return domain.Account{}, fmt.Errorf("alpaca: get account: %w", err)
	}
	return domain.Account{
		Status: a.Status,
		Cash:   parseFloat(a.Cash),
		Equity: parseFloat(a.Equity),
	}, nil
}

// SubmitOrder places a market day order.
func (c *Client) SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderConfirmation, error) {
	if intent.Quantity <= 0 || (intent.Side != domain.SideBuy && intent.Side != domain.SideSell) {
		return domain.OrderConfirmation{}, fmt.Errorf("alpaca: submit order: %w", domain.ErrInvalidOrder)
	}
	body := apiOrderRequest{
		Symbol:        intent.Symbol,
		Qty:           strconv.Itoa(intent.Quantity),
		Side:          string(intent.Side),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: intent.ClientOrderID,
	}
	var o apiOrder
	if err := do(ctx, c.trading.R().SetBody(body), http.MethodPost, "/v2/orders", &o); err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("alpaca: submit order %s %s: %w", intent.Side, intent.Symbol, err)
	}
	conf := domain.OrderConfirmation{OrderID: o.ID, Status: o.Status}
	if o.FilledAvgPrice != nil {
		conf.FillPrice = parseFloat(*o.FilledAvgPrice)
	}
	return conf, nil
}

// ListOpenOrders returns working orders.
func (c *Client) ListOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	var orders []apiOrder
	req := c.trading.R().SetQueryParams(map[string]string{"status": "open", "limit": "500"})
	if err := do(ctx, req, http.MethodGet, "/v2/orders", &orders); err != nil {
		return nil, fmt.Errorf("alpaca: list open orders: %w", err)
	}
	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		side, err := domain.ParseSide(o.Side)
		if err != nil {
			continue
		}
		out = append(out, domain.OpenOrder{ID: o.ID, Symbol: o.Symbol, Side: side, Status: o.Status})
	}
	return out, nil
}

// ListPositions returns the long positions held. Fractional quantities are
// truncated to whole shares.
func (c *Client) ListPositions(ctx context.Context) ([]domain.Position, error) {
	var positions []apiPosition
	if err := do(ctx, c.trading.R(), http.MethodGet, "/v2/positions", &positions); err != nil {
		return nil, fmt.Errorf("alpaca: list positions: %w", err)
	}
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		shares := int(parseFloat(p.Qty))
		if shares <= 0 {
			continue
		}
		out = append(out, domain.Position{
			Symbol:  p.Symbol,
			Shares:  shares,
			AvgCost: parseFloat(p.AvgEntryPrice),
		})
	}
	return out, nil
}

// IsOpen reports the exchange clock.
func (c *Client) IsOpen(ctx context.Context) (bool, error) {
	var clk apiClock
	if err := do(ctx, c.trading.R(), http.MethodGet, "/v2/clock", &clk); err != nil {
		return false, fmt.Errorf("alpaca: get clock: %w", err)
	}
	return clk.IsOpen, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
