// Package portfolio owns the run-scoped cash, positions, marks and cooldown
// stamps. Every mutation goes through State so that a fill and its cooldown
// stamp are applied together.
package portfolio

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Fill is a confirmed or simulated execution to apply to the portfolio.
type Fill struct {
	Symbol   string
	Side     domain.Side
	Quantity int
	Price    float64
	At       time.Time
}

type holding struct {
	shares int
	cost   decimal.Decimal // total cost basis of the open shares
}

// State is the single owner of portfolio state for one run. Reads hand out
// value copies via View; writes are serialised by mu.
type State struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	holdings  map[string]*holding
	marks     map[string]float64
	cooldowns *CooldownTracker

	symMu    sync.Mutex
	symLocks map[string]*sync.Mutex
}

// New creates a flat portfolio holding only cash.
func New(cash float64) *State {
	return &State{
		cash:      decimal.NewFromFloat(cash),
		holdings:  make(map[string]*holding),
		marks:     make(map[string]float64),
		cooldowns: NewCooldownTracker(),
		symLocks:  make(map[string]*sync.Mutex),
	}
}

// Seed sets an existing position, typically restored from the broker at
// startup. avgCost is the average entry price.
func (s *State) Seed(symbol string, shares int, avgCost float64) error {
	if shares < 0 {
		return fmt.Errorf("portfolio: seed %s: %w: negative shares", symbol, domain.ErrInvalidOrder)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if shares == 0 {
		delete(s.holdings, symbol)
		return nil
	}
	s.holdings[symbol] = &holding{
		shares: shares,
		cost:   decimal.NewFromFloat(avgCost).Mul(decimal.NewFromInt(int64(shares))),
	}
	return nil
}

// SetCash overwrites the cash balance.
func (s *State) SetCash(cash float64) {
	s.mu.Lock()
	s.cash = decimal.NewFromFloat(cash)
	s.mu.Unlock()
}

// Mark records the latest prices used for equity and PnL. Non-positive prices
// are ignored so a missing quote never zeroes a mark.
func (s *State) Mark(prices map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, p := range prices {
		if p > 0 {
			s.marks[sym] = p
		}
	}
}

// LockSymbol serialises execution for one symbol. The returned func releases
// the lock.
func (s *State) LockSymbol(symbol string) func() {
	s.symMu.Lock()
	l, ok := s.symLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.symLocks[symbol] = l
	}
	s.symMu.Unlock()

	l.Lock()
	return l.Unlock
}

// ApplyFill updates cash, the position and the matching cooldown stamp in one
// critical section.
func (s *State) ApplyFill(f Fill) error {
	if f.Quantity <= 0 {
		return fmt.Errorf("portfolio: apply fill %s: %w: quantity %d", f.Symbol, domain.ErrInvalidOrder, f.Quantity)
	}
	if f.Price <= 0 {
		return fmt.Errorf("portfolio: apply fill %s: %w: price %.4f", f.Symbol, domain.ErrInvalidOrder, f.Price)
	}

	qty := decimal.NewFromInt(int64(f.Quantity))
	price := decimal.NewFromFloat(f.Price)
	notional := price.Mul(qty)

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.holdings[f.Symbol]
	switch f.Side {
	case domain.SideBuy:
		if h == nil {
			h = &holding{}
			s.holdings[f.Symbol] = h
		}
		h.shares += f.Quantity
		h.cost = h.cost.Add(notional)
		s.cash = s.cash.Sub(notional)
		s.cooldowns.StampBuy(f.Symbol, f.At, f.Price)

	case domain.SideSell:
		if h == nil || h.shares < f.Quantity {
			held := 0
			if h != nil {
				held = h.shares
			}
			return fmt.Errorf("portfolio: apply fill %s: %w: sell %d with %d held",
				f.Symbol, domain.ErrInvalidOrder, f.Quantity, held)
		}
		avg := h.cost.Div(decimal.NewFromInt(int64(h.shares)))
		h.shares -= f.Quantity
		h.cost = h.cost.Sub(avg.Mul(qty))
		if h.shares == 0 {
			delete(s.holdings, f.Symbol)
		}
		s.cash = s.cash.Add(notional)
		s.cooldowns.StampSell(f.Symbol, f.At)

	default:
		return fmt.Errorf("portfolio: apply fill %s: %w: side %q", f.Symbol, domain.ErrInvalidOrder, f.Side)
	}

	s.marks[f.Symbol] = f.Price
	return nil
}

// Shares returns the shares held in symbol.
func (s *State) Shares(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h := s.holdings[symbol]; h != nil {
		return h.shares
	}
	return 0
}

// Cash returns the current cash balance.
func (s *State) Cash() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cash.InexactFloat64()
}

// View returns a value copy of the portfolio marked at the latest prices.
// Positions without a mark are valued at cost.
func (s *State) View(at time.Time) domain.PortfolioView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	equity := s.cash
	unrealized := decimal.Zero
	positions := make(map[string]domain.Position, len(s.holdings))

	for sym, h := range s.holdings {
		shares := decimal.NewFromInt(int64(h.shares))
		avg := h.cost.Div(shares)
		mark := avg
		if p, ok := s.marks[sym]; ok {
			mark = decimal.NewFromFloat(p)
		}
		equity = equity.Add(mark.Mul(shares))
		unrealized = unrealized.Add(mark.Sub(avg).Mul(shares))
		positions[sym] = domain.Position{
			Symbol:  sym,
			Shares:  h.shares,
			AvgCost: avg.Round(4).InexactFloat64(),
		}
	}

	buys, sells, buyPrices := s.cooldowns.copies()
	return domain.PortfolioView{
		Timestamp:     at,
		Cash:          s.cash.Round(2).InexactFloat64(),
		Equity:        equity.Round(2).InexactFloat64(),
		UnrealizedPnL: unrealized.Round(2).InexactFloat64(),
		Positions:     positions,
		Prices:        maps.Clone(s.marks),
		LastBuy:       buys,
		LastSell:      sells,
		LastBuyPrice:  buyPrices,
	}
}

// Symbols returns the held symbols in sorted order.
func (s *State) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.holdings))
	for sym := range s.holdings {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
