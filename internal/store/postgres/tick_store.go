package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL. The full record is
// kept as JSONB next to a few queryable columns.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a new TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// SaveTick upserts rec keyed by (run_id, seq).
func (s *TickStore) SaveTick(ctx context.Context, rec domain.TickRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal tick %d: %w", rec.Seq, err)
	}

	const query = `
		INSERT INTO tick_records (run_id, seq, ts, mode, execute, skipped, cash, equity, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			ts = EXCLUDED.ts,
			skipped = EXCLUDED.skipped,
			cash = EXCLUDED.cash,
			equity = EXCLUDED.equity,
			record = EXCLUDED.record`

	_, err = s.pool.Exec(ctx, query,
		rec.RunID, rec.Seq, rec.Timestamp, string(rec.Mode), rec.Execute, rec.Skipped,
		rec.Portfolio.Cash, rec.Portfolio.Equity, body,
	)
	if err != nil {
		return fmt.Errorf("postgres: save tick %s/%d: %w", rec.RunID, rec.Seq, err)
	}
	return nil
}

// ListTicks returns the records of runID in sequence order.
func (s *TickStore) ListTicks(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.TickRecord, error) {
	query, args := withTimeRange(`SELECT record FROM tick_records WHERE run_id = $1`, "ts", opts, runID)
	query += " ORDER BY seq ASC"
	query, args = withPage(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.TickRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		var rec domain.TickRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal tick: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ticks rows: %w", err)
	}
	return out, nil
}
