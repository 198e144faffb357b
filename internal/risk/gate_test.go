package risk

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var now = time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)

func defaultCfg() Config {
	return FromConfig(config.Defaults().Risk)
}

func buy(symbol string, qty int) domain.ProposedAction {
	return domain.ProposedAction{Symbol: symbol, Side: domain.SideBuy, Quantity: qty, Reason: "test"}
}

func sell(symbol string, qty int) domain.ProposedAction {
	return domain.ProposedAction{Symbol: symbol, Side: domain.SideSell, Quantity: qty, Reason: "test"}
}

func view(cash float64, positions map[string]int, price float64) domain.PortfolioView {
	v := domain.PortfolioView{
		Cash:         cash,
		Equity:       cash,
		Positions:    map[string]domain.Position{},
		LastBuy:      map[string]time.Time{},
		LastSell:     map[string]time.Time{},
		LastBuyPrice: map[string]float64{},
	}
	for sym, n := range positions {
		v.Positions[sym] = domain.Position{Symbol: sym, Shares: n, AvgCost: price}
		v.Equity += float64(n) * price
	}
	return v
}

func TestFromConfig(t *testing.T) {
	cfg := defaultCfg()
	assert.Equal(t, 10, cfg.MaxSharesPerTrade)
	assert.Equal(t, 5, cfg.RiskMaxShares)
	assert.Equal(t, 20.0, cfg.MaxPositionPercent)
	assert.Equal(t, 60*time.Second, cfg.BuyCooldown)
	assert.Equal(t, 120*time.Minute, cfg.SellCooldown)
}

// RISK_MAX_SHARES=5, 4 held, buy 10 -> 1 share, position_shares_cap.
func TestScenarioSharesHeadroom(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxPositionPercent = 100
	v := view(100000, map[string]int{"PLTR": 4}, 100)

	res := Apply(buy("PLTR", 10), v, cfg, 100, now)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, 1, res.Quantity)
	assert.Equal(t, 10, res.Requested)
	assert.Equal(t, ReasonPositionSharesCap, res.Reason)
	assert.True(t, res.Clamped)

	violation, ok := res.Violation()
	require.True(t, ok)
	assert.Equal(t, 10, violation.Requested)
	assert.Equal(t, 1, violation.Allowed)
}

// BUY_COOLDOWN_SECONDS=60, last buy 30s ago -> hold, buy_cooldown.
func TestScenarioBuyCooldown(t *testing.T) {
	cfg := defaultCfg()
	v := view(100000, nil, 100)
	v.LastBuy["PLTR"] = now.Add(-30 * time.Second)
	v.LastBuyPrice["PLTR"] = 100

	res := Apply(buy("PLTR", 1), v, cfg, 100, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, domain.SideHold, res.Side)
	assert.Equal(t, 0, res.Quantity)
	assert.Equal(t, ReasonBuyCooldown, res.Reason)
}

// MAX_POSITION_PERCENT=20, equity 100000, position 19000, price 100, buy 50
// -> 10 shares, position_percent_cap.
func TestScenarioPositionPercent(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxSharesPerTrade = 100
	cfg.RiskMaxShares = 1000
	v := view(81000, map[string]int{"PLTR": 190}, 100)
	require.Equal(t, 100000.0, v.Equity)

	res := Apply(buy("PLTR", 50), v, cfg, 100, now)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, 10, res.Quantity)
	assert.Equal(t, ReasonPositionPctCap, res.Reason)
}

func TestCooldownBeforeSizing(t *testing.T) {
	cfg := defaultCfg()
	v := view(100000, map[string]int{"PLTR": 4}, 100)
	v.LastBuy["PLTR"] = now.Add(-10 * time.Second)

	// would also trip per-trade and shares caps, but cooldown wins
	res := Apply(buy("PLTR", 50), v, cfg, 100, now)
	assert.Equal(t, ReasonBuyCooldown, res.Reason)
	assert.Equal(t, 0, res.Quantity)
}

func TestHoldPassesThrough(t *testing.T) {
	cfg := defaultCfg()
	v := view(0, nil, 100)
	v.LastBuy["PLTR"] = now

	res := Apply(domain.HoldAction("PLTR", "no actionable signal"), v, cfg, 100, now)
	assert.Equal(t, domain.SideHold, res.Side)
	assert.Equal(t, "no actionable signal", res.Reason)
	assert.False(t, res.Clamped)

	zero := buy("PLTR", 0)
	zero.Reason = "nothing"
	res = Apply(zero, v, cfg, 100, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, "nothing", res.Reason)
	assert.False(t, res.Clamped)
}

func TestApprovedUnchanged(t *testing.T) {
	res := Apply(buy("PLTR", 1), view(100000, nil, 100), defaultCfg(), 100, now)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, 1, res.Quantity)
	assert.Equal(t, ReasonApproved, res.Reason)
	assert.False(t, res.Clamped)
	_, ok := res.Violation()
	assert.False(t, ok)
}

func TestPerTradeCap(t *testing.T) {
	cfg := defaultCfg()
	cfg.RiskMaxShares = 1000
	cfg.MaxPositionPercent = 100

	res := Apply(buy("PLTR", 25), view(100000, nil, 100), cfg, 100, now)
	assert.Equal(t, 10, res.Quantity)
	assert.Equal(t, ReasonPerTradeCap, res.Reason)
}

func TestSharesCapAtCeilingBecomesHold(t *testing.T) {
	res := Apply(buy("PLTR", 1), view(100000, map[string]int{"PLTR": 5}, 100), defaultCfg(), 100, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, ReasonPositionSharesCap, res.Reason)
}

func TestPercentCapToZeroBecomesHold(t *testing.T) {
	cfg := defaultCfg()
	// 1 share of NFLX at 200 with equity 1000 already is 20%
	v := view(800, map[string]int{"NFLX": 1}, 200)
	res := Apply(buy("NFLX", 1), v, cfg, 200, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, ReasonPositionPctCap, res.Reason)
}

func TestInsufficientCash(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxPositionPercent = 100

	// equity comes mostly from another holding so only cash binds
	res := Apply(buy("PLTR", 3), view(250, map[string]int{"NFLX": 10}, 100), cfg, 100, now)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, ReasonInsufficientCash, res.Reason)

	res = Apply(buy("PLTR", 1), view(50, map[string]int{"NFLX": 10}, 100), cfg, 100, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, ReasonInsufficientCash, res.Reason)
}

func TestBuyWithoutPrice(t *testing.T) {
	res := Apply(buy("PLTR", 1), view(1000, nil, 0), defaultCfg(), 0, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, ReasonNoPrice, res.Reason)
}

func TestSellClampsToHeld(t *testing.T) {
	cfg := defaultCfg()
	cfg.SellCooldown = 0

	res := Apply(sell("PLTR", 3), view(0, map[string]int{"PLTR": 2}, 100), cfg, 100, now)
	assert.Equal(t, domain.SideSell, res.Side)
	assert.Equal(t, 2, res.Quantity)
	assert.True(t, res.Clamped)
	assert.Equal(t, ReasonHeldSharesCap, res.Reason)
	assert.Equal(t, "held_shares_cap", res.Reason)

	res = Apply(sell("PLTR", 1), view(0, nil, 100), cfg, 100, now)
	assert.True(t, res.IsHold())
	assert.Equal(t, ReasonNoPosition, res.Reason)
}

func TestSellCooldown(t *testing.T) {
	v := view(0, map[string]int{"PLTR": 2}, 100)
	v.LastSell["PLTR"] = now.Add(-119 * time.Minute)

	res := Apply(sell("PLTR", 1), v, defaultCfg(), 100, now)
	assert.Equal(t, ReasonSellCooldown, res.Reason)
	assert.True(t, res.IsHold())

	v.LastSell["PLTR"] = now.Add(-121 * time.Minute)
	res = Apply(sell("PLTR", 1), v, defaultCfg(), 100, now)
	assert.Equal(t, domain.SideSell, res.Side)
	assert.Equal(t, 1, res.Quantity)
}

func TestReentryBlockedAfterSell(t *testing.T) {
	cfg := defaultCfg()
	v := view(1000, nil, 20)
	v.LastSell["PLTK"] = now.Add(-30 * time.Minute)

	res := Apply(buy("PLTK", 1), v, cfg, 20, now)
	assert.Equal(t, ReasonReentryCooldown, res.Reason)

	cfg.BlockReentry = false
	res = Apply(buy("PLTK", 1), v, cfg, 20, now)
	assert.Equal(t, 1, res.Quantity)

	cfg.BlockReentry = true
	v.LastSell["PLTK"] = now.Add(-130 * time.Minute)
	res = Apply(buy("PLTK", 1), v, cfg, 20, now)
	assert.Equal(t, 1, res.Quantity)
}

func TestPriceMoveBypass(t *testing.T) {
	cfg := defaultCfg()
	cfg.PriceMoveBypassPct = 1.0
	v := view(10000, nil, 100)
	v.LastBuy["PLTR"] = now.Add(-20 * time.Second)
	v.LastBuyPrice["PLTR"] = 100

	res := Apply(buy("PLTR", 1), v, cfg, 100.5, now)
	assert.Equal(t, ReasonBuyCooldown, res.Reason)

	res = Apply(buy("PLTR", 1), v, cfg, 102, now)
	assert.Equal(t, domain.SideBuy, res.Side)
	assert.Equal(t, 1, res.Quantity)

	res = Apply(buy("PLTR", 1), v, cfg, 98.9, now)
	assert.Equal(t, 1, res.Quantity)
}

func TestApplyDoesNotMutateView(t *testing.T) {
	v := view(1000, map[string]int{"PLTR": 1}, 100)
	before := v.Positions["PLTR"]
	_ = Apply(buy("PLTR", 3), v, defaultCfg(), 100, now)
	assert.Equal(t, before, v.Positions["PLTR"])
	assert.Equal(t, 1000.0, v.Cash)
}

// Randomised check of the sizing invariants over many portfolios.
func TestInvariantsHoldAcrossInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	sides := []domain.Side{domain.SideBuy, domain.SideSell, domain.SideHold}

	for i := 0; i < 5000; i++ {
		cfg := Config{
			MaxSharesPerTrade:  1 + rng.IntN(20),
			RiskMaxShares:      1 + rng.IntN(50),
			MaxPositionPercent: 1 + float64(rng.IntN(100)),
			BuyCooldown:        time.Duration(rng.IntN(120)) * time.Second,
			SellCooldown:       time.Duration(rng.IntN(180)) * time.Minute,
			BlockReentry:       rng.IntN(2) == 0,
		}
		price := 1 + float64(rng.IntN(50000))/100
		held := rng.IntN(60)
		v := view(float64(rng.IntN(200000)), map[string]int{"S": held}, price)
		if rng.IntN(3) == 0 {
			v.LastBuy["S"] = now.Add(-time.Duration(rng.IntN(240)) * time.Second)
		}
		if rng.IntN(3) == 0 {
			v.LastSell["S"] = now.Add(-time.Duration(rng.IntN(300)) * time.Minute)
		}
		action := domain.ProposedAction{Symbol: "S", Side: sides[rng.IntN(3)], Quantity: rng.IntN(100)}

		res := Apply(action, v, cfg, price, now)

		require.GreaterOrEqual(t, res.Quantity, 0)
		if res.IsHold() {
			continue
		}
		require.LessOrEqual(t, res.Quantity, cfg.MaxSharesPerTrade)
		require.Equal(t, action.Side, res.Side)

		switch res.Side {
		case domain.SideBuy:
			if last, ok := v.LastBuy["S"]; ok {
				require.GreaterOrEqual(t, now.Sub(last), cfg.BuyCooldown)
			}
			require.LessOrEqual(t, held+res.Quantity, cfg.RiskMaxShares)
			value := float64(held+res.Quantity) * price
			require.LessOrEqual(t, value/v.Equity, cfg.MaxPositionPercent/100+1e-9)
			require.LessOrEqual(t, float64(res.Quantity)*price, v.Cash+1e-9)
		case domain.SideSell:
			if last, ok := v.LastSell["S"]; ok {
				require.GreaterOrEqual(t, now.Sub(last), cfg.SellCooldown)
			}
			require.LessOrEqual(t, res.Quantity, held)
		}
	}
}
