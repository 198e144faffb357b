// Package report turns tick records and backtest summaries into operator
// output: the portfolio time series CSV, summary files, a rendered summary
// and record fan-out to the journal and the signal bus.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// CSVHeader is the portfolio time series header.
var CSVHeader = []string{
	"timestamp", "mode", "cash", "equity", "unrealized_pnl",
	"positions_json", "avg_entry_prices_json", "prices_json", "actions_json",
}

// actionCell is one symbol's entry in actions_json.
type actionCell struct {
	Side     domain.Side    `json:"side"`
	Quantity int            `json:"qty"`
	Outcome  domain.Outcome `json:"outcome"`
	Reason   string         `json:"reason"`
}

// CSVSink appends one row per tick to the portfolio time series.
type CSVSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
	done bool
}

// NewCSVSink opens path for appending, creating parent directories, and
// writes the header when the file is new or empty.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("report: create %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report: open csv %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("report: stat csv %s: %w", path, err)
	}

	s := &CSVSink{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.write(CSVHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file being written.
func (s *CSVSink) Path() string { return s.path }

// OnTick appends rec as one row.
func (s *CSVSink) OnTick(_ context.Context, rec domain.TickRecord) error {
	row, err := Row(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(row)
}

// Close flushes and closes the file. Later calls are no-ops.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return s.f.Close()
}

func (s *CSVSink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// Row renders rec in CSVHeader order. JSON cells have sorted keys; money is
// fixed to two decimals.
func Row(rec domain.TickRecord) ([]string, error) {
	view := rec.Portfolio
	positions := make(map[string]int, len(view.Positions))
	entries := make(map[string]float64, len(view.Positions))
	for sym, p := range view.Positions {
		positions[sym] = p.Shares
		entries[sym] = p.AvgCost
	}
	actions := make(map[string]actionCell, len(rec.Outcomes))
	for _, o := range rec.Outcomes {
		actions[o.Symbol] = actionCell{
			Side:     o.Result.Side,
			Quantity: o.Result.Quantity,
			Outcome:  o.Result.Outcome,
			Reason:   o.Result.Reason,
		}
	}
	prices := view.Prices
	if prices == nil {
		prices = map[string]float64{}
	}

	cells := make([]string, 0, 4)
	for _, v := range []any{positions, entries, prices, actions} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("report: marshal csv cell: %w", err)
		}
		cells = append(cells, string(b))
	}

	return append([]string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		string(rec.Mode),
		money(view.Cash),
		money(view.Equity),
		money(view.UnrealizedPnL),
	}, cells...), nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
