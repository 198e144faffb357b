package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Thresholds shared by the deterministic roles.
const (
	momentumThreshold   = 0.01
	valuationThreshold  = 0.03
	firstSeenConf       = 0.45
	valuationHoldConf   = 0.5
	riskApproveConf     = 0.7
	riskVetoConf        = 1.0
	minBuyValuationConf = 0.6
	minBuyFinalConf     = 0.65
	reentryConfCap      = 0.4
)

// Forced veto names accepted by Params.ForceVeto.
const (
	VetoMarketClosed     = "market_closed"
	VetoSymbolNotAllowed = "symbol_not_allowed"
	VetoInsufficientCash = "insufficient_cash"
)

// momentum compares price with the previous observation of the same symbol.
func momentum(price float64, prev PricePoint, seen bool, held int) domain.RoleOutput {
	out := domain.RoleOutput{Role: domain.RoleMarket, Side: domain.SideHold}
	if !seen || prev.Price <= 0 || price <= 0 {
		out.Confidence = firstSeenConf
		out.Reason = "market: no momentum signal"
		return out
	}

	change := (price - prev.Price) / prev.Price
	conf := math.Min(0.4+math.Abs(change)*20, 0.85)

	switch {
	case change >= momentumThreshold:
		out.Side = domain.SideBuy
		out.Confidence = conf
		out.Reason = fmt.Sprintf("market: momentum up %.2f%%", change*100)
	case change <= -momentumThreshold && held > 0:
		out.Side = domain.SideSell
		out.Confidence = conf
		out.Reason = fmt.Sprintf("market: momentum down %.2f%%", math.Abs(change)*100)
	default:
		out.Confidence = math.Max(0.4, math.Min(0.55, conf))
		out.Reason = "market: momentum neutral"
	}
	return out
}

// valuation applies take-profit and stop-loss exits, then fair-value scoring.
func valuation(p Params, symbol string, price float64, pos domain.Position) domain.RoleOutput {
	out := domain.RoleOutput{Role: domain.RoleValuation, Side: domain.SideHold}

	if pos.Shares > 0 && price > 0 && pos.AvgCost > 0 {
		pnl := (price - pos.AvgCost) / pos.AvgCost
		if pnl >= p.TakeProfitPct {
			out.Side = domain.SideSell
			out.Confidence = 0.9
			out.Reason = "take profit hit"
			return out
		}
		if pnl <= p.StopLossPct {
			out.Side = domain.SideSell
			out.Confidence = 0.85
			out.Reason = "stop loss hit"
			return out
		}
	}

	fair, ok := p.FairValues[symbol]
	if !ok || fair <= 0 || price <= 0 || (p.MaxShares > 0 && pos.Shares >= p.MaxShares) {
		out.Confidence = valuationHoldConf
		out.Reason = "valuation: no actionable signal"
		return out
	}

	score := (fair - price) / price
	switch {
	case score >= valuationThreshold:
		out.Side = domain.SideBuy
		out.Confidence = math.Min(0.5+(score-valuationThreshold)*5, 0.9)
		out.Reason = fmt.Sprintf("valuation: score=%.3f, fair=%.2f, price=%.2f", score, fair, price)
	case score <= -valuationThreshold && pos.Shares > 0:
		out.Side = domain.SideSell
		out.Confidence = math.Min(0.6+(math.Abs(score)-valuationThreshold)*3, 0.85)
		out.Reason = fmt.Sprintf("valuation: score=%.3f, fair=%.2f, price=%.2f", score, fair, price)
	default:
		out.Confidence = valuationHoldConf
		out.Reason = "valuation: no actionable signal"
	}
	return out
}

// gatekeeper vetoes on market state, the allowlist, position limits and cash.
func gatekeeper(p Params, in domain.RoleInput, price float64, market, val domain.RoleOutput) domain.RoleOutput {
	veto := func(reason string) domain.RoleOutput {
		return domain.RoleOutput{
			Role:       domain.RoleRisk,
			Side:       domain.SideHold,
			Confidence: riskVetoConf,
			Veto:       true,
			Reason:     reason,
		}
	}

	switch p.ForceVeto {
	case VetoMarketClosed:
		return veto("market closed")
	case VetoSymbolNotAllowed:
		return veto("symbol not allowed")
	case VetoInsufficientCash:
		return veto("insufficient cash")
	}

	if !in.MarketOpen {
		return veto("market closed")
	}

	proposed := market.Side
	if val.Side != domain.SideHold {
		proposed = val.Side
	}
	if proposed != domain.SideHold && !p.allowed(in.Symbol) {
		return veto("symbol not allowed")
	}
	if proposed == domain.SideBuy {
		if p.MaxShares > 0 && in.Portfolio.Shares(in.Symbol) >= p.MaxShares {
			return veto("position limit reached")
		}
		if price <= 0 || in.Portfolio.Cash < price {
			return veto("insufficient cash")
		}
	}

	return domain.RoleOutput{
		Role:       domain.RoleRisk,
		Side:       domain.SideHold,
		Confidence: riskApproveConf,
		Reason:     "checks passed",
	}
}

// coordinate merges the three role outputs into the final action.
func coordinate(p Params, in domain.RoleInput, market, val, risk domain.RoleOutput) domain.RoleOutput {
	mc := clampConf(market.Confidence)
	vc := clampConf(val.Confidence)
	rc := clampConf(risk.Confidence)

	out := domain.RoleOutput{Role: domain.RoleCoordinator, Side: domain.SideHold}
	trail := fmt.Sprintf("market=%s:%s | valuation=%s:%s", market.Side, market.Reason, val.Side, val.Reason)

	if risk.Veto {
		out.Confidence = weighted(mc, vc, riskVetoConf)
		out.Reason = fmt.Sprintf("risk veto: %s | %s", risk.Reason, trail)
		return out
	}

	effective := vc
	if val.Side == domain.SideBuy && inReentryWindow(in, p.SellCooldown) {
		effective = math.Min(vc, reentryConfCap)
	}
	final := weighted(mc, effective, rc)
	out.Confidence = final

	switch val.Side {
	case domain.SideSell:
		out.Side = domain.SideSell
		out.Quantity = p.OrderQty
		out.Reason = val.Reason
	case domain.SideBuy:
		switch {
		case effective < minBuyValuationConf || final < minBuyFinalConf:
			out.Reason = fmt.Sprintf("buy confidence too low | valuation_conf=%.2f final_conf=%.2f | %s",
				effective, final, trail)
		case market.Side == domain.SideSell:
			out.Reason = "buy blocked by market sell | " + trail
		default:
			out.Side = domain.SideBuy
			out.Quantity = p.OrderQty
			out.Reason = val.Reason
		}
	default:
		out.Reason = "no actionable signal | " + trail
	}
	return out
}

func inReentryWindow(in domain.RoleInput, cooldown time.Duration) bool {
	last, ok := in.Portfolio.LastSell[in.Symbol]
	if !ok {
		return false
	}
	return in.Snapshot.Timestamp.Sub(last) < cooldown
}

func weighted(market, val, risk float64) float64 {
	return 0.30*market + 0.45*val + 0.25*risk
}

func clampConf(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
