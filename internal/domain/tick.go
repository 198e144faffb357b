package domain

import "time"

// Mode is the temporal mode of a run.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
)

// SymbolOutcome is everything that happened to one symbol on one tick.
type SymbolOutcome struct {
	Symbol   string          `json:"symbol"`
	Price    float64         `json:"price"`
	Proposed ProposedAction  `json:"proposed"`
	Resolved ResolvedAction  `json:"resolved"`
	Result   ExecutionResult `json:"result"`
}

// TickRecord is the structured per-tick record the reporting side consumes:
// resolved actions, execution results and the resulting portfolio.
type TickRecord struct {
	RunID      string          `json:"run_id"`
	Seq        int             `json:"seq"`
	Timestamp  time.Time       `json:"timestamp"`
	Mode       Mode            `json:"mode"`
	Execute    bool            `json:"execute"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Outcomes   []SymbolOutcome `json:"outcomes"`
	Portfolio  PortfolioView   `json:"portfolio"`
}

// BacktestSummary is the terminal report of a bounded historical run.
type BacktestSummary struct {
	RunID          string         `json:"run_id"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Days           int            `json:"days"`
	StepMinutes    int            `json:"step_minutes"`
	Steps          int            `json:"steps"`
	SkippedSteps   int            `json:"skipped_steps"`
	StartCash      float64        `json:"start_cash"`
	EndValue       float64        `json:"end_value"`
	PnL            float64        `json:"pnl"`
	NumBuys        int            `json:"num_buys"`
	NumSells       int            `json:"num_sells"`
	NumHolds       int            `json:"num_holds"`
	NumVetoes      int            `json:"num_vetoes"`
	FinalPositions map[string]int `json:"final_positions"`
	BrokerCalls    int            `json:"broker_calls"`
}
