package domain

import (
	"context"
	"time"
)

// MarketSnapshot is the market state captured at the start of one tick. It is
// not modified after the source returns it.
type MarketSnapshot struct {
	Timestamp  time.Time          `json:"timestamp"`
	Symbols    []string           `json:"symbols"`
	Prices     map[string]float64 `json:"prices"`
	MarketOpen bool               `json:"market_open"`
}

// Price returns the snapshot price for symbol.
func (s MarketSnapshot) Price(symbol string) (float64, bool) {
	p, ok := s.Prices[symbol]
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume int64     `json:"v"`
}

// SnapshotSource produces the snapshot for a tick. Live sources ignore the
// past-ness of at; historical sources price every symbol as of at.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbols []string, at time.Time) (MarketSnapshot, error)
}

// QuoteSource returns the most recent tradable price for a symbol.
type QuoteSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// BarSource returns historical bars in [start, end].
type BarSource interface {
	Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error)
}

// MarketClock reports whether the exchange is currently open.
type MarketClock interface {
	IsOpen(ctx context.Context) (bool, error)
}
