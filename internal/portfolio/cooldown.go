package portfolio

import (
	"maps"
	"time"
)

// CooldownTracker records the last buy and sell time per symbol, plus the
// price of the last buy. It is owned by State and guarded by its mutex.
type CooldownTracker struct {
	lastBuy      map[string]time.Time
	lastSell     map[string]time.Time
	lastBuyPrice map[string]float64
}

// NewCooldownTracker returns an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		lastBuy:      make(map[string]time.Time),
		lastSell:     make(map[string]time.Time),
		lastBuyPrice: make(map[string]float64),
	}
}

// StampBuy records a buy fill for symbol.
func (c *CooldownTracker) StampBuy(symbol string, at time.Time, price float64) {
	c.lastBuy[symbol] = at
	c.lastBuyPrice[symbol] = price
}

// StampSell records a sell fill for symbol.
func (c *CooldownTracker) StampSell(symbol string, at time.Time) {
	c.lastSell[symbol] = at
}

// LastBuy returns the last buy time for symbol.
func (c *CooldownTracker) LastBuy(symbol string) (time.Time, bool) {
	t, ok := c.lastBuy[symbol]
	return t, ok
}

// LastSell returns the last sell time for symbol.
func (c *CooldownTracker) LastSell(symbol string) (time.Time, bool) {
	t, ok := c.lastSell[symbol]
	return t, ok
}

// copies returns independent copies of the stamp maps for a view.
func (c *CooldownTracker) copies() (buys, sells map[string]time.Time, prices map[string]float64) {
	return maps.Clone(c.lastBuy), maps.Clone(c.lastSell), maps.Clone(c.lastBuyPrice)
}
