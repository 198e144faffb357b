// Package marketdata builds the per-tick market snapshot from a live quote
// source, from historical bars, or from the synthetic offline price model.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type cachedQuote struct {
	price   float64
	expires time.Time
}

// Live snapshots the latest tradable prices. Quotes are cached for a short
// TTL so that bursts of reads inside one tick hit the source once.
type Live struct {
	quotes domain.QuoteSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	clock   domain.MarketClock
	limiter domain.RateLimiter

	mu    sync.Mutex
	cache map[string]cachedQuote
}

var _ domain.SnapshotSource = (*Live)(nil)

// NewLive creates a Live source over quotes.
func NewLive(quotes domain.QuoteSource, ttl time.Duration, logger *slog.Logger) *Live {
	return &Live{
		quotes: quotes,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "marketdata")),
		now:    time.Now,
		cache:  make(map[string]cachedQuote),
	}
}

// SetClock uses the broker clock for the market-open flag instead of
// regular-hours arithmetic.
func (l *Live) SetClock(c domain.MarketClock) { l.clock = c }

// SetRateLimiter throttles quote requests per symbol.
func (l *Live) SetRateLimiter(r domain.RateLimiter) { l.limiter = r }

// PushPrice records a streamed price for symbol. It is served in place of a
// quote request until the TTL runs out.
func (l *Live) PushPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	l.mu.Lock()
	l.cache[symbol] = cachedQuote{price: price, expires: l.now().Add(l.ttl)}
	l.mu.Unlock()
}

// Snapshot returns prices for symbols. A symbol whose quote fails is left out
// of the price map and logged; the call fails only when no symbol could be
// priced.
func (l *Live) Snapshot(ctx context.Context, symbols []string, at time.Time) (domain.MarketSnapshot, error) {
	snap := domain.MarketSnapshot{
		Timestamp: at,
		Symbols:   append([]string(nil), symbols...),
		Prices:    make(map[string]float64, len(symbols)),
	}

	var errs []error
	for _, sym := range symbols {
		p, err := l.price(ctx, sym)
		if err != nil {
			l.logger.WarnContext(ctx, "marketdata: quote failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		snap.Prices[sym] = p
	}
	if len(symbols) > 0 && len(snap.Prices) == 0 {
		return domain.MarketSnapshot{}, &domain.ConnectivityError{Source: "quotes", Err: errors.Join(errs...)}
	}

	snap.MarketOpen = l.marketOpen(ctx, at)
	return snap, nil
}

func (l *Live) price(ctx context.Context, symbol string) (float64, error) {
	now := l.now()
	l.mu.Lock()
	c, ok := l.cache[symbol]
	l.mu.Unlock()
	if ok && now.Before(c.expires) {
		return c.price, nil
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx, "market_data:"+symbol); err != nil {
			return 0, fmt.Errorf("marketdata: %s: %w", symbol, err)
		}
	}
	p, err := l.quotes.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return 0, fmt.Errorf("marketdata: %s: %w", symbol, domain.ErrNoPrice)
	}

	l.mu.Lock()
	l.cache[symbol] = cachedQuote{price: p, expires: now.Add(l.ttl)}
	l.mu.Unlock()
	return p, nil
}

func (l *Live) marketOpen(ctx context.Context, at time.Time) bool {
	if l.clock != nil {
		open, err := l.clock.IsOpen(ctx)
		if err == nil {
			return open
		}
		l.logger.WarnContext(ctx, "marketdata: clock failed, using regular hours", slog.String("error", err.Error()))
	}
	return RegularHours(at)
}
