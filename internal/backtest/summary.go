package backtest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Summarizer accumulates tick records into a BacktestSummary. It is a loop
// sink.
type Summarizer struct {
	mu      sync.Mutex
	summary domain.BacktestSummary
	symbols []string
	last    *domain.PortfolioView
	broker  *CountingBroker
}

// NewSummarizer starts a summary for the run.
func NewSummarizer(runID string, start time.Time, days, stepMinutes int, startCash float64, symbols []string) *Summarizer {
	return &Summarizer{
		summary: domain.BacktestSummary{
			RunID:       runID,
			Start:       start,
			Days:        days,
			StepMinutes: stepMinutes,
			StartCash:   startCash,
			EndValue:    startCash,
		},
		symbols: append([]string(nil), symbols...),
	}
}

// SetBroker reports the call count of b as BrokerCalls.
func (s *Summarizer) SetBroker(b *CountingBroker) { s.broker = b }

// OnTick folds one record into the summary.
func (s *Summarizer) OnTick(_ context.Context, rec domain.TickRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.Steps++
	s.summary.End = rec.Timestamp
	if rec.Skipped {
		s.summary.SkippedSteps++
	}
	for _, o := range rec.Outcomes {
		if o.Proposed.Veto {
			s.summary.NumVetoes++
		}
		if !o.Result.Filled() {
			s.summary.NumHolds++
			continue
		}
		switch o.Result.Side {
		case domain.SideBuy:
			s.summary.NumBuys++
		case domain.SideSell:
			s.summary.NumSells++
		}
	}
	view := rec.Portfolio
	s.last = &view
	return nil
}

// Summary returns the summary so far. End value marks the final holdings at
// the last prices seen.
func (s *Summarizer) Summary() domain.BacktestSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.summary
	out.FinalPositions = make(map[string]int, len(s.symbols))
	for _, sym := range s.symbols {
		out.FinalPositions[sym] = 0
	}
	if s.last != nil {
		out.EndValue = s.last.Equity
		for sym, p := range s.last.Positions {
			out.FinalPositions[sym] = p.Shares
		}
	}
	out.PnL = decimal.NewFromFloat(out.EndValue).
		Sub(decimal.NewFromFloat(out.StartCash)).
		Round(2).
		InexactFloat64()
	if s.broker != nil {
		out.BrokerCalls = s.broker.Calls()
	}
	return out
}
