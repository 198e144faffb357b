package marketdata

import (
	"context"
	"math"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var syntheticBase = map[string]float64{
	"PLTR": 95.0,
	"NFLX": 190.0,
	"PLTK": 18.0,
}

// SyntheticPrice is the deterministic offline price of symbol at ts: a base
// price modulated by an intraday and a weekly sawtooth, rounded to cents.
func SyntheticPrice(symbol string, ts time.Time) float64 {
	base, ok := syntheticBase[symbol]
	if !ok {
		base = 50.0
	}
	bucket := ts.Unix() / 60
	if ts.Unix()%60 < 0 {
		bucket--
	}
	intraday := float64(floorMod(bucket, 1440))/1440.0 - 0.5
	weekly := float64(floorMod(bucket, 1440*5))/(1440.0*5.0) - 0.5
	price := base * (1.0 + 0.03*intraday + 0.02*weekly)
	return math.Round(math.Max(price, 1.0)*100) / 100
}

func floorMod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Synthetic is a SnapshotSource pricing every symbol with SyntheticPrice. The
// market is always reported open.
type Synthetic struct{}

var _ domain.SnapshotSource = Synthetic{}

// Snapshot prices symbols at at.
func (Synthetic) Snapshot(ctx context.Context, symbols []string, at time.Time) (domain.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketSnapshot{}, err
	}
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		prices[s] = SyntheticPrice(s, at)
	}
	return domain.MarketSnapshot{
		Timestamp:  at,
		Symbols:    append([]string(nil), symbols...),
		Prices:     prices,
		MarketOpen: true,
	}, nil
}
