package marketdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/cache/memory"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type quotes struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (q *quotes) LatestPrice(_ context.Context, symbol string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	p, ok := q.prices[symbol]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

type fixedClock struct {
	open bool
	err  error
}

func (c fixedClock) IsOpen(context.Context) (bool, error) { return c.open, c.err }

type bars struct {
	calls int
	data  map[string][]domain.Bar
}

func (b *bars) Bars(_ context.Context, symbol, _ string, _, _ time.Time) ([]domain.Bar, error) {
	b.calls++
	d, ok := b.data[symbol]
	if !ok {
		return nil, errors.New("no bars")
	}
	return d, nil
}

func TestRegularHours(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"open bell EST", time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC), true},
		{"before open EST", time.Date(2025, 11, 3, 14, 29, 0, 0, time.UTC), false},
		{"close bell EST", time.Date(2025, 11, 3, 21, 0, 0, 0, time.UTC), true},
		{"after close EST", time.Date(2025, 11, 3, 21, 1, 0, 0, time.UTC), false},
		{"open bell EDT", time.Date(2025, 7, 1, 13, 30, 0, 0, time.UTC), true},
		{"saturday", time.Date(2025, 11, 8, 16, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RegularHours(tc.at))
		})
	}
}

func TestTimeframe(t *testing.T) {
	for step, want := range map[int]string{0: "1Min", 1: "1Min", 5: "5Min", 10: "15Min", 30: "30Min", 60: "1Hour", 61: "1Day"} {
		assert.Equal(t, want, Timeframe(step), "step %d", step)
	}
}

func TestSyntheticPrice(t *testing.T) {
	at := time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, 94.58, SyntheticPrice("PLTR", at))
	assert.Equal(t, 189.15, SyntheticPrice("NFLX", at))
	assert.Equal(t, 17.92, SyntheticPrice("PLTK", at))
	assert.Equal(t, 49.78, SyntheticPrice("XYZ", at))
	assert.Equal(t, 96.9, SyntheticPrice("PLTR", time.Date(2025, 11, 7, 20, 30, 0, 0, time.UTC)))

	// pure: same instant, same price
	assert.Equal(t, SyntheticPrice("PLTR", at), SyntheticPrice("PLTR", at))

	snap, err := Synthetic{}.Snapshot(context.Background(), []string{"PLTR", "NFLX"}, at)
	require.NoError(t, err)
	assert.True(t, snap.MarketOpen)
	assert.Equal(t, map[string]float64{"PLTR": 94.58, "NFLX": 189.15}, snap.Prices)
}

func TestLiveCachesQuotes(t *testing.T) {
	q := &quotes{prices: map[string]float64{"PLTR": 100, "NFLX": 200}}
	now := time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)
	l := NewLive(q, 5*time.Second, discard())
	l.now = func() time.Time { return now }
	l.SetClock(fixedClock{open: true})

	snap, err := l.Snapshot(context.Background(), []string{"PLTR", "NFLX"}, now)
	require.NoError(t, err)
	assert.True(t, snap.MarketOpen)
	assert.Equal(t, 2, q.calls)

	_, err = l.Snapshot(context.Background(), []string{"PLTR", "NFLX"}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls, "served from cache")

	now = now.Add(6 * time.Second)
	_, err = l.Snapshot(context.Background(), []string{"PLTR"}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, q.calls)
}

func TestLivePushedPriceSkipsQuote(t *testing.T) {
	q := &quotes{prices: map[string]float64{"PLTR": 100}}
	now := time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)
	l := NewLive(q, 5*time.Second, discard())
	l.now = func() time.Time { return now }
	l.SetClock(fixedClock{open: true})

	l.PushPrice("PLTR", 101.5)
	l.PushPrice("NFLX", 0) // ignored

	snap, err := l.Snapshot(context.Background(), []string{"PLTR"}, now)
	require.NoError(t, err)
	assert.Equal(t, 101.5, snap.Prices["PLTR"])
	assert.Equal(t, 0, q.calls)

	now = now.Add(6 * time.Second)
	snap, err = l.Snapshot(context.Background(), []string{"PLTR"}, now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.Prices["PLTR"], "stale push falls back to the quote source")
	assert.Equal(t, 1, q.calls)
}

func TestLivePartialAndTotalFailure(t *testing.T) {
	q := &quotes{prices: map[string]float64{"PLTR": 100}}
	at := time.Date(2025, 11, 8, 15, 0, 0, 0, time.UTC) // saturday
	l := NewLive(q, time.Second, discard())
	l.SetClock(fixedClock{err: errors.New("clock down")})

	snap, err := l.Snapshot(context.Background(), []string{"PLTR", "NFLX"}, at)
	require.NoError(t, err)
	_, ok := snap.Price("NFLX")
	assert.False(t, ok)
	assert.False(t, snap.MarketOpen, "falls back to regular hours")

	_, err = l.Snapshot(context.Background(), []string{"NFLX"}, at)
	var connErr *domain.ConnectivityError
	require.ErrorAs(t, err, &connErr)
}

func TestHistoricalPricesLastCloseAtOrBefore(t *testing.T) {
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	src := &bars{data: map[string][]domain.Bar{
		"PLTR": {
			{Time: day.Add(15 * time.Hour), Close: 96},
			{Time: day.Add(-24 * time.Hour).Add(20 * time.Hour), Close: 94},
			{Time: day.Add(14*time.Hour + 30*time.Minute), Close: 95},
		},
	}}
	cache := memory.NewBarCache()
	h := NewHistorical(src, cache, 60, discard())

	p, err := h.PriceAt(context.Background(), "PLTR", day.Add(14*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 95.0, p)

	p, err = h.PriceAt(context.Background(), "PLTR", day.Add(14*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 94.0, p, "previous session close")

	p, err = h.PriceAt(context.Background(), "PLTR", day.Add(20*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 96.0, p)
	assert.Equal(t, 1, src.calls, "one fetch per symbol and day")

	_, err = cache.GetBars(context.Background(), BarKey("PLTR", "1Hour", day))
	require.NoError(t, err)

	_, err = h.PriceAt(context.Background(), "PLTR", day.Add(-48*time.Hour))
	require.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestHistoricalSnapshotFailsClosed(t *testing.T) {
	h := NewHistorical(&bars{data: map[string][]domain.Bar{}}, nil, 60, discard())
	_, err := h.Snapshot(context.Background(), []string{"PLTR"}, time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC))
	var connErr *domain.ConnectivityError
	require.ErrorAs(t, err, &connErr)
}
