package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// lookback is how far before the priced instant bars are requested, so that
// the first tick of a day still finds a prior close.
const lookback = 7 * 24 * time.Hour

// Historical prices each symbol at the close of the last bar at or before
// the requested instant. Bars are fetched once per (symbol, timeframe, day)
// and kept in the bar cache.
type Historical struct {
	bars      domain.BarSource
	cache     domain.BarCache
	timeframe string
	logger    *slog.Logger
}

var _ domain.SnapshotSource = (*Historical)(nil)

// NewHistorical creates a Historical source for a replay stepping every
// stepMinutes.
func NewHistorical(bars domain.BarSource, cache domain.BarCache, stepMinutes int, logger *slog.Logger) *Historical {
	return &Historical{
		bars:      bars,
		cache:     cache,
		timeframe: Timeframe(stepMinutes),
		logger:    logger.With(slog.String("component", "marketdata")),
	}
}

// Snapshot prices every symbol as of at. Replay timestamps are generated
// inside the trading session, so the market is reported open.
func (h *Historical) Snapshot(ctx context.Context, symbols []string, at time.Time) (domain.MarketSnapshot, error) {
	at = at.UTC()
	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		p, err := h.PriceAt(ctx, sym, at)
		if err != nil {
			return domain.MarketSnapshot{}, &domain.ConnectivityError{Source: "bars", Err: err}
		}
		prices[sym] = p
	}
	return domain.MarketSnapshot{
		Timestamp:  at,
		Symbols:    append([]string(nil), symbols...),
		Prices:     prices,
		MarketOpen: true,
	}, nil
}

// PriceAt returns the close of the last bar at or before at.
func (h *Historical) PriceAt(ctx context.Context, symbol string, at time.Time) (float64, error) {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	bars, err := h.dayBars(ctx, symbol, day)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(at) })
	if idx == 0 {
		return 0, fmt.Errorf("marketdata: %s %s at %s: %w", symbol, h.timeframe, at.Format(time.RFC3339), domain.ErrNoPrice)
	}
	return bars[idx-1].Close, nil
}

func (h *Historical) dayBars(ctx context.Context, symbol string, day time.Time) ([]domain.Bar, error) {
	key := BarKey(symbol, h.timeframe, day)
	if h.cache != nil {
		bars, err := h.cache.GetBars(ctx, key)
		if err == nil {
			return bars, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "marketdata: bar cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	start := day.Add(-lookback)
	end := day.Add(24*time.Hour - time.Second)
	bars, err := h.bars.Bars(ctx, symbol, h.timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("marketdata: fetch bars %s: %w", symbol, err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	if h.cache != nil {
		if err := h.cache.SetBars(ctx, key, bars); err != nil {
			h.logger.WarnContext(ctx, "marketdata: bar cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return bars, nil
}

// BarKey is the cache key for one symbol's bars for one replay day.
func BarKey(symbol, timeframe string, day time.Time) string {
	return fmt.Sprintf("%s|%s|%s", symbol, timeframe, day.Format("2006-01-02"))
}
