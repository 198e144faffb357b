// Package risk resolves proposed actions against the run's risk envelope.
// Apply is pure: it reads a portfolio view and returns a resolved action
// without touching any state.
package risk

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Reasons attached to resolved actions.
const (
	ReasonApproved          = "approved"
	ReasonBuyCooldown       = "buy_cooldown"
	ReasonSellCooldown      = "sell_cooldown"
	ReasonReentryCooldown   = "reentry_cooldown"
	ReasonPerTradeCap       = "per_trade_cap"
	ReasonPositionSharesCap = "position_shares_cap"
	ReasonNoPosition        = "no_position"
	ReasonHeldSharesCap     = "held_shares_cap"
	ReasonPositionPctCap    = "position_percent_cap"
	ReasonInsufficientCash  = "insufficient_cash"
	ReasonNoPrice           = "no_price"
)

// Config is the immutable risk envelope for one run.
type Config struct {
	MaxSharesPerTrade  int
	RiskMaxShares      int
	MaxPositionPercent float64
	BuyCooldown        time.Duration
	SellCooldown       time.Duration
	// PriceMoveBypassPct lets a buy through an active buy cooldown when the
	// price has moved at least this many percent from the last buy. Zero
	// disables the bypass.
	PriceMoveBypassPct float64
	// BlockReentry blocks buys inside the sell cooldown that follows a sell.
	BlockReentry bool
}

// FromConfig builds the risk envelope from application configuration.
func FromConfig(rc config.RiskConfig) Config {
	return Config{
		MaxSharesPerTrade:  rc.MaxSharesPerTrade,
		RiskMaxShares:      rc.RiskMaxShares,
		MaxPositionPercent: rc.MaxPositionPercent,
		BuyCooldown:        time.Duration(rc.BuyCooldownSeconds) * time.Second,
		SellCooldown:       time.Duration(rc.SellCooldownMinutes) * time.Minute,
		PriceMoveBypassPct: rc.PriceMoveBypassPct,
		BlockReentry:       rc.BlockReentry,
	}
}

// Apply runs the sequential risk checks against action and returns the
// resolved action. The first blocking check wins; sizing clamps accumulate and
// the reason names the last clamp that reduced the quantity. A quantity
// clamped to zero becomes a hold carrying the limiting reason.
//
// Order:
//  1. hold / zero quantity passes through
//  2. cooldowns (buy, sell, and buy re-entry after a sell)
//  3. per-trade cap
//  4. shares ceiling (buy) or held shares (sell)
//  5. position value as a percent of equity (buy)
//  6. available cash (buy)
func Apply(action domain.ProposedAction, view domain.PortfolioView, cfg Config, price float64, now time.Time) domain.ResolvedAction {
	res := domain.ResolvedAction{
		Symbol:    action.Symbol,
		Side:      action.Side,
		Quantity:  action.Quantity,
		Requested: action.Quantity,
		Reason:    ReasonApproved,
	}

	// Check 1: nothing to resolve.
	if action.IsHold() {
		res.Side = domain.SideHold
		res.Quantity = 0
		res.Reason = action.Reason
		return res
	}

	// Check 2: cooldowns block outright.
	if reason, blocked := cooldownBlock(action, view, cfg, price, now); blocked {
		return block(res, reason)
	}

	qty := action.Quantity

	// Check 3: per-trade cap.
	if cfg.MaxSharesPerTrade > 0 && qty > cfg.MaxSharesPerTrade {
		qty = cfg.MaxSharesPerTrade
		res.Reason = ReasonPerTradeCap
		res.Clamped = true
	}

	held := view.Shares(action.Symbol)

	switch action.Side {
	case domain.SideSell:
		// Check 4 (sell): never sell more than is held.
		if held <= 0 {
			return block(res, ReasonNoPosition)
		}
		if qty > held {
			qty = held
			res.Reason = ReasonHeldSharesCap
			res.Clamped = true
		}

	case domain.SideBuy:
		if price <= 0 {
			return block(res, ReasonNoPrice)
		}

		// Check 4 (buy): shares ceiling.
		if cfg.RiskMaxShares > 0 && held+qty > cfg.RiskMaxShares {
			qty = max(cfg.RiskMaxShares-held, 0)
			res.Reason = ReasonPositionSharesCap
			res.Clamped = true
			if qty == 0 {
				return block(res, ReasonPositionSharesCap)
			}
		}

		// Check 5: position value ceiling.
		if cfg.MaxPositionPercent > 0 {
			limit := percentHeadroom(view.Equity, cfg.MaxPositionPercent, float64(held)*price, price)
			if qty > limit {
				qty = limit
				res.Reason = ReasonPositionPctCap
				res.Clamped = true
				if qty == 0 {
					return block(res, ReasonPositionPctCap)
				}
			}
		}

		// Check 6: cash.
		affordable := floorDiv(decimal.NewFromFloat(view.Cash), decimal.NewFromFloat(price))
		if qty > affordable {
			qty = affordable
			res.Reason = ReasonInsufficientCash
			res.Clamped = true
			if qty == 0 {
				return block(res, ReasonInsufficientCash)
			}
		}
	}

	res.Quantity = qty
	return res
}

func cooldownBlock(action domain.ProposedAction, view domain.PortfolioView, cfg Config, price float64, now time.Time) (string, bool) {
	switch action.Side {
	case domain.SideBuy:
		if last, ok := view.LastBuy[action.Symbol]; ok && now.Sub(last) < cfg.BuyCooldown {
			if !priceMoveBypass(view.LastBuyPrice[action.Symbol], price, cfg.PriceMoveBypassPct) {
				return ReasonBuyCooldown, true
			}
		}
		if cfg.BlockReentry {
			if last, ok := view.LastSell[action.Symbol]; ok && now.Sub(last) < cfg.SellCooldown {
				return ReasonReentryCooldown, true
			}
		}
	case domain.SideSell:
		if last, ok := view.LastSell[action.Symbol]; ok && now.Sub(last) < cfg.SellCooldown {
			return ReasonSellCooldown, true
		}
	}
	return "", false
}

// priceMoveBypass reports whether price has moved far enough from lastPrice to
// ignore the buy cooldown.
func priceMoveBypass(lastPrice, price, pct float64) bool {
	if pct <= 0 || lastPrice <= 0 || price <= 0 {
		return false
	}
	return math.Abs(price-lastPrice)/lastPrice*100 >= pct
}

// percentHeadroom is floor((pct/100*equity - positionValue) / price), never
// negative.
func percentHeadroom(equity, pct, positionValue, price float64) int {
	if equity <= 0 {
		return 0
	}
	room := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Sub(decimal.NewFromFloat(positionValue))
	return floorDiv(room, decimal.NewFromFloat(price))
}

func floorDiv(num, den decimal.Decimal) int {
	if num.Sign() <= 0 || den.Sign() <= 0 {
		return 0
	}
	return int(num.Div(den).Floor().IntPart())
}

func block(res domain.ResolvedAction, reason string) domain.ResolvedAction {
	res.Side = domain.SideHold
	res.Quantity = 0
	res.Reason = reason
	res.Clamped = true
	return res
}
