// Package backtest builds the replay calendar and summarises a bounded
// historical run.
package backtest

import "time"

// Session bounds in UTC. Timestamps are generated on [SessionOpen,
// SessionClose), so the closing bell itself is never a tick.
const (
	SessionOpen  = 14*time.Hour + 30*time.Minute
	SessionClose = 21 * time.Hour
)

// TradingDays returns n weekdays starting at start (inclusive). Exchange
// holidays are not skipped.
func TradingDays(start time.Time, n int) []time.Time {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, 0, n)
	for len(out) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// Timestamps returns the replay instants for days trading days from start,
// stepping stepMinutes through each session. days and stepMinutes below one
// are treated as one.
func Timestamps(start time.Time, days, stepMinutes int) []time.Time {
	days = max(days, 1)
	step := time.Duration(max(stepMinutes, 1)) * time.Minute

	var out []time.Time
	for _, day := range TradingDays(start, days) {
		end := day.Add(SessionClose)
		for ts := day.Add(SessionOpen); ts.Before(end); ts = ts.Add(step) {
			out = append(out, ts)
		}
	}
	return out
}
