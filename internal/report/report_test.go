package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/cache/memory"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

var t0 = time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)

func record(seq int) domain.TickRecord {
	return domain.TickRecord{
		RunID:     "run-1",
		Seq:       seq,
		Timestamp: t0.Add(time.Duration(seq-1) * time.Hour),
		Mode:      domain.ModeBacktest,
		Outcomes: []domain.SymbolOutcome{{
			Symbol: "PLTR",
			Result: domain.ExecutionResult{Outcome: domain.OutcomeSubmitted, Side: domain.SideBuy, Quantity: 1, Reason: "simulated fill"},
		}},
		Portfolio: domain.PortfolioView{
			Cash:          905.42,
			Equity:        1000,
			UnrealizedPnL: 0.1,
			Positions:     map[string]domain.Position{"PLTR": {Symbol: "PLTR", Shares: 1, AvgCost: 94.58}},
			Prices:        map[string]float64{"PLTR": 94.68, "NFLX": 189.15},
		},
	}
}

func TestRow(t *testing.T) {
	row, err := Row(record(1))
	require.NoError(t, err)
	require.Len(t, row, len(CSVHeader))

	assert.Equal(t, "2025-11-03T14:30:00Z", row[0])
	assert.Equal(t, "backtest", row[1])
	assert.Equal(t, "905.42", row[2])
	assert.Equal(t, "1000.00", row[3])
	assert.Equal(t, "0.10", row[4])
	assert.Equal(t, `{"PLTR":1}`, row[5])
	assert.Equal(t, `{"PLTR":94.58}`, row[6])
	assert.Equal(t, `{"NFLX":189.15,"PLTR":94.68}`, row[7])
	assert.Equal(t, `{"PLTR":{"side":"buy","qty":1,"outcome":"submitted","reason":"simulated fill"}}`, row[8])
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "ts.csv")

	s, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.OnTick(context.Background(), record(1)))
	require.NoError(t, s.Close())

	s, err = NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.OnTick(context.Background(), record(2)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "2025-11-03T15:30:00Z", rows[2][0])
}

func TestWriteSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sum := domain.BacktestSummary{RunID: "run-1", Steps: 35, PnL: -1.5, FinalPositions: map[string]int{"PLTR": 2}}

	path, err := WriteSummary(dir, sum)
	require.NoError(t, err)
	assert.Equal(t, SummaryPath(dir, "run-1"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got domain.BacktestSummary
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 35, got.Steps)
	assert.Equal(t, -1.5, got.PnL)
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(domain.BacktestSummary{
		RunID:          "run-1",
		Start:          t0,
		End:            t0.Add(6 * time.Hour),
		Steps:          7,
		PnL:            -12.345,
		FinalPositions: map[string]int{"PLTR": 2, "NFLX": 0},
	})
	assert.Contains(t, out, "Backtest summary")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "-12.35")
	assert.Contains(t, out, "NFLX=0 PLTR=2")
}

func TestBusSinkPublishesTick(t *testing.T) {
	bus := memory.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelTick)
	require.NoError(t, err)
	orders, err := bus.Subscribe(ctx, domain.ChannelOrder)
	require.NoError(t, err)
	require.NoError(t, NewBusSink(bus).OnTick(ctx, record(3)))

	select {
	case msg := <-ch:
		var rec domain.TickRecord
		require.NoError(t, json.Unmarshal(msg, &rec))
		assert.Equal(t, 3, rec.Seq)
	case <-time.After(time.Second):
		t.Fatal("no tick published")
	}

	select {
	case msg := <-orders:
		var ev struct {
			Symbol string                 `json:"symbol"`
			Result domain.ExecutionResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "PLTR", ev.Symbol)
		assert.Equal(t, domain.OutcomeSubmitted, ev.Result.Outcome)
	case <-time.After(time.Second):
		t.Fatal("no order published")
	}
}

type tickMem struct{ recs []domain.TickRecord }

func (m *tickMem) SaveTick(_ context.Context, rec domain.TickRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *tickMem) ListTicks(context.Context, string, domain.ListOpts) ([]domain.TickRecord, error) {
	return m.recs, nil
}

func TestJournalAndLogSinks(t *testing.T) {
	store := &tickMem{}
	require.NoError(t, NewJournalSink(store).OnTick(context.Background(), record(1)))
	assert.Len(t, store.recs, 1)

	var buf bytes.Buffer
	l := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, l.OnTick(context.Background(), record(1)))
	assert.True(t, strings.Contains(buf.String(), "equity=1000"))
	assert.True(t, strings.Contains(buf.String(), "component=portfolio"))
}

var _ io.Closer = (*CSVSink)(nil)
