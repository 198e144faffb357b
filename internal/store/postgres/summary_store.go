package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// SummaryStore implements domain.SummaryStore using PostgreSQL.
type SummaryStore struct {
	pool *pgxpool.Pool
}

// NewSummaryStore creates a new SummaryStore backed by the given connection pool.
func NewSummaryStore(pool *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

// SaveSummary upserts the summary of a backtest run.
func (s *SummaryStore) SaveSummary(ctx context.Context, sum domain.BacktestSummary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("postgres: marshal summary: %w", err)
	}

	const query = `
		INSERT INTO backtest_summaries (run_id, start_ts, end_ts, steps, start_cash, end_value, pnl, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			end_ts = EXCLUDED.end_ts,
			steps = EXCLUDED.steps,
			end_value = EXCLUDED.end_value,
			pnl = EXCLUDED.pnl,
			summary = EXCLUDED.summary`

	_, err = s.pool.Exec(ctx, query,
		sum.RunID, sum.Start, sum.End, sum.Steps, sum.StartCash, sum.EndValue, sum.PnL, body,
	)
	if err != nil {
		return fmt.Errorf("postgres: save summary %s: %w", sum.RunID, err)
	}
	return nil
}

// GetSummary returns the summary of runID, or domain.ErrNotFound.
func (s *SummaryStore) GetSummary(ctx context.Context, runID string) (domain.BacktestSummary, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT summary FROM backtest_summaries WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BacktestSummary{}, fmt.Errorf("postgres: summary %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("postgres: get summary %s: %w", runID, err)
	}

	var sum domain.BacktestSummary
	if err := json.Unmarshal(body, &sum); err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("postgres: unmarshal summary: %w", err)
	}
	return sum, nil
}
