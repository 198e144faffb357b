package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var t0 = time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func tick(seq int, at time.Time) domain.TickRecord {
	return domain.TickRecord{
		RunID:     "run-1",
		Seq:       seq,
		Timestamp: at,
		Mode:      domain.ModeBacktest,
		Outcomes: []domain.SymbolOutcome{{
			Symbol: "PLTR",
			Price:  94.58,
			Result: domain.ExecutionResult{Outcome: domain.OutcomeSubmitted, Side: domain.SideBuy, Quantity: 1, Simulated: true},
		}},
		Portfolio: domain.PortfolioView{
			Timestamp: at,
			Cash:      905.42,
			Equity:    1000,
			Positions: map[string]domain.Position{"PLTR": {Symbol: "PLTR", Shares: 1, AvgCost: 94.58}},
		},
	}
}

func TestSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestJournal(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())
	assert.True(t, found["tick_records"])
	assert.True(t, found["backtest_summaries"])
	assert.True(t, found["audit_log"])
}

func TestTicksRoundTripInOrder(t *testing.T) {
	t.Parallel()
	j, _ := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.SaveTick(ctx, tick(2, t0.Add(time.Hour))))
	require.NoError(t, j.SaveTick(ctx, tick(1, t0)))
	// replaying a seq overwrites it
	again := tick(1, t0)
	again.Portfolio.Equity = 1001
	require.NoError(t, j.SaveTick(ctx, again))

	got, err := j.ListTicks(ctx, "run-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, 1001.0, got[0].Portfolio.Equity)
	assert.Equal(t, "PLTR", got[0].Outcomes[0].Symbol)
	assert.True(t, got[0].Timestamp.Equal(t0))

	since := t0.Add(30 * time.Minute)
	got, err = j.ListTicks(ctx, "run-1", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Seq)

	got, err = j.ListTicks(ctx, "run-1", domain.ListOpts{Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = j.ListTicks(ctx, "other", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummaryRoundTrip(t *testing.T) {
	t.Parallel()
	j, _ := newTestJournal(t)
	ctx := context.Background()

	_, err := j.GetSummary(ctx, "run-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.BacktestSummary{
		RunID:          "run-1",
		Start:          t0,
		End:            t0.Add(6 * time.Hour),
		Steps:          7,
		StartCash:      1000,
		EndValue:       1012.5,
		PnL:            12.5,
		FinalPositions: map[string]int{"PLTR": 2},
	}
	require.NoError(t, j.SaveSummary(ctx, want))
	got, err := j.GetSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.PnL, got.PnL)
	assert.Equal(t, want.FinalPositions, got.FinalPositions)
	assert.True(t, want.End.Equal(got.End))
}

func TestAuditLogNewestFirst(t *testing.T) {
	t.Parallel()
	j, _ := newTestJournal(t)
	ctx := context.Background()

	clock := t0
	j.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	require.NoError(t, j.Log(ctx, "run-1", "order_submitted", map[string]any{"symbol": "PLTR"}))
	require.NoError(t, j.Log(ctx, "run-1", "order_rejected", nil))

	entries, err := j.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "order_rejected", entries[0].Event)
	assert.Equal(t, "order_submitted", entries[1].Event)
	assert.Equal(t, "PLTR", entries[1].Detail["symbol"])
	assert.True(t, t0.Add(time.Second).Equal(entries[1].CreatedAt))

	entries, err = j.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
