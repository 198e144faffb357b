package domain

import (
	"fmt"
	"strings"
)

// Side is the direction of a proposed or resolved trade.
type Side string

const (
	SideHold Side = "hold"
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts the role vocabulary (BUY/SELL/HOLD, any case).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	case "hold", "":
		return SideHold, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrMalformedOutput, s)
	}
}

// Role names, in invocation order.
const (
	RoleMarket      = "market"
	RoleValuation   = "valuation"
	RoleRisk        = "risk"
	RoleCoordinator = "coordinator"
)

// RoleOutput is the typed result of one reasoning role. Only the risk role
// sets Veto.
type RoleOutput struct {
	Role       string  `json:"role"`
	Side       Side    `json:"side"`
	Quantity   int     `json:"quantity"`
	Confidence float64 `json:"confidence"`
	Veto       bool    `json:"veto,omitempty"`
	Reason     string  `json:"reason"`
}

// Validate rejects outputs a role should never produce.
func (o RoleOutput) Validate() error {
	switch o.Side {
	case SideHold, SideBuy, SideSell:
	default:
		return fmt.Errorf("%w: side %q", ErrMalformedOutput, o.Side)
	}
	if o.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d", ErrMalformedOutput, o.Quantity)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f out of range", ErrMalformedOutput, o.Confidence)
	}
	return nil
}

// ProposedAction is the merged decision for one symbol on one tick. It is
// produced fresh each tick and never persisted on its own.
type ProposedAction struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Quantity   int        `json:"quantity"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
	Market     RoleOutput `json:"market"`
	Valuation  RoleOutput `json:"valuation"`
	Risk       RoleOutput `json:"risk"`
	Veto       bool       `json:"veto"`
	VetoReason string     `json:"veto_reason,omitempty"`
	Failed     bool       `json:"failed,omitempty"`
}

// HoldAction builds a hold for symbol carrying reason.
func HoldAction(symbol, reason string) ProposedAction {
	return ProposedAction{Symbol: symbol, Side: SideHold, Reason: reason}
}

// IsHold reports whether the action requests no trade.
func (a ProposedAction) IsHold() bool {
	return a.Side == SideHold || a.Quantity <= 0
}

// ResolvedAction is a proposed action after the risk gate.
type ResolvedAction struct {
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`
	Quantity  int    `json:"quantity"`
	Requested int    `json:"requested"`
	Reason    string `json:"reason"`
	Clamped   bool   `json:"clamped,omitempty"`
}

// IsHold reports whether nothing may be traded.
func (r ResolvedAction) IsHold() bool {
	return r.Side == SideHold || r.Quantity <= 0
}

// Violation describes the clamp or block as a RiskViolation, or reports false
// when the gate approved the request unchanged.
func (r ResolvedAction) Violation() (RiskViolation, bool) {
	if !r.Clamped {
		return RiskViolation{}, false
	}
	return RiskViolation{
		Symbol:    r.Symbol,
		Side:      r.Side,
		Requested: r.Requested,
		Allowed:   r.Quantity,
		Reason:    r.Reason,
	}, true
}
