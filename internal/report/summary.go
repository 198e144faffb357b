package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(16)

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

// SummaryPath is where WriteSummary puts the summary of runID in dir.
func SummaryPath(dir, runID string) string {
	return filepath.Join(dir, "backtest_"+runID+".json")
}

// WriteSummary writes s as indented JSON under dir and returns the path.
func WriteSummary(dir string, s domain.BacktestSummary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create %s: %w", dir, err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal summary: %w", err)
	}
	path := SummaryPath(dir, s.RunID)
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("report: write summary: %w", err)
	}
	return path, nil
}

// RenderSummary formats s for a terminal.
func RenderSummary(s domain.BacktestSummary) string {
	pnl := decimal.NewFromFloat(s.PnL)
	pnlStyle := gainStyle
	if pnl.IsNegative() {
		pnlStyle = lossStyle
	}

	symbols := make([]string, 0, len(s.FinalPositions))
	for sym := range s.FinalPositions {
		symbols = append(symbols, sym)
	}
	slices.Sort(symbols)
	held := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		held = append(held, fmt.Sprintf("%s=%d", sym, s.FinalPositions[sym]))
	}
	if len(held) == 0 {
		held = append(held, "none")
	}

	rows := [][2]string{
		{"run", s.RunID},
		{"window", fmt.Sprintf("%s → %s", s.Start.UTC().Format(time.DateOnly), s.End.UTC().Format(time.RFC3339))},
		{"days / step", fmt.Sprintf("%d / %dm", s.Days, s.StepMinutes)},
		{"steps", fmt.Sprintf("%d (%d skipped)", s.Steps, s.SkippedSteps)},
		{"start cash", decimal.NewFromFloat(s.StartCash).StringFixed(2)},
		{"end value", decimal.NewFromFloat(s.EndValue).StringFixed(2)},
		{"pnl", pnlStyle.Render(pnl.StringFixed(2))},
		{"buys / sells", fmt.Sprintf("%d / %d", s.NumBuys, s.NumSells)},
		{"holds / vetoes", fmt.Sprintf("%d / %d", s.NumHolds, s.NumVetoes)},
		{"positions", strings.Join(held, " ")},
		{"broker calls", fmt.Sprintf("%d", s.BrokerCalls)},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), r[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Backtest summary"),
		boxStyle.Render(strings.Join(lines, "\n")),
	)
}
