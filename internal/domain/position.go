package domain

import "time"

// Position is the holding in one symbol. Shares is never negative and only
// changes on a confirmed or simulated fill.
type Position struct {
	Symbol  string  `json:"symbol"`
	Shares  int     `json:"shares"`
	AvgCost float64 `json:"avg_cost"`
}

// PortfolioView is a point-in-time copy of portfolio state handed to readers
// (roles, the risk gate, reporters). Mutating it has no effect on the owner.
type PortfolioView struct {
	Timestamp     time.Time            `json:"timestamp"`
	Cash          float64              `json:"cash"`
	Equity        float64              `json:"equity"`
	UnrealizedPnL float64              `json:"unrealized_pnl"`
	Positions     map[string]Position  `json:"positions"`
	Prices        map[string]float64   `json:"prices"`
	LastBuy       map[string]time.Time `json:"last_buy,omitempty"`
	LastSell      map[string]time.Time `json:"last_sell,omitempty"`
	LastBuyPrice  map[string]float64   `json:"last_buy_price,omitempty"`
}

// Shares returns the share count held for symbol.
func (v PortfolioView) Shares(symbol string) int {
	return v.Positions[symbol].Shares
}

// AvgCost returns the average entry price for symbol, or zero when flat.
func (v PortfolioView) AvgCost(symbol string) float64 {
	return v.Positions[symbol].AvgCost
}

// PositionValue marks the holding in symbol at price.
func (v PortfolioView) PositionValue(symbol string, price float64) float64 {
	return float64(v.Positions[symbol].Shares) * price
}
