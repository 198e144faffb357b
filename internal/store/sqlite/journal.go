// Package sqlite is the single-file journal used when no PostgreSQL server
// is configured.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal implements domain.Journal on a SQLite file.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Journal = (*Journal)(nil)

// Open opens (creating if needed) the journal at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// one writer; the driver serialises anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// SaveTick upserts rec keyed by (run_id, seq).
func (j *Journal) SaveTick(ctx context.Context, rec domain.TickRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tick %d: %w", rec.Seq, err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO tick_records (run_id, seq, ts, mode, skipped, equity, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			ts = excluded.ts,
			skipped = excluded.skipped,
			equity = excluded.equity,
			record = excluded.record`,
		rec.RunID, rec.Seq, formatTS(rec.Timestamp), string(rec.Mode), rec.Skipped,
		rec.Portfolio.Equity, string(body),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save tick %s/%d: %w", rec.RunID, rec.Seq, err)
	}
	return nil
}

// ListTicks returns the records of runID in sequence order.
func (j *Journal) ListTicks(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.TickRecord, error) {
	query := `SELECT record FROM tick_records WHERE run_id = ?`
	args := []any{runID}
	query, args = timeRange(query, "ts", opts, args)
	query += " ORDER BY seq ASC"
	query, args = page(query, opts, args)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list ticks %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.TickRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite: scan tick: %w", err)
		}
		var rec domain.TickRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal tick: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSummary upserts a backtest summary.
func (j *Journal) SaveSummary(ctx context.Context, s domain.BacktestSummary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sqlite: marshal summary: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO backtest_summaries (run_id, summary) VALUES (?, ?)
		ON CONFLICT (run_id) DO UPDATE SET summary = excluded.summary`,
		s.RunID, string(body),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save summary %s: %w", s.RunID, err)
	}
	return nil
}

// GetSummary returns the summary of runID, or domain.ErrNotFound.
func (j *Journal) GetSummary(ctx context.Context, runID string) (domain.BacktestSummary, error) {
	var body string
	err := j.db.QueryRowContext(ctx, `SELECT summary FROM backtest_summaries WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BacktestSummary{}, fmt.Errorf("sqlite: summary %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("sqlite: get summary %s: %w", runID, err)
	}
	var s domain.BacktestSummary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("sqlite: unmarshal summary: %w", err)
	}
	return s, nil
}

// Log appends an audit entry.
func (j *Journal) Log(ctx context.Context, runID, event string, detail map[string]any) error {
	body, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		runID, event, string(body), formatTS(j.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first.
func (j *Journal) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := timeRange(`SELECT id, run_id, event, detail, created_at FROM audit_log WHERE 1=1`, "created_at", opts, nil)
	query += " ORDER BY id DESC"
	query, args = page(query, opts, args)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			detail  sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		if e.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
			return nil, fmt.Errorf("sqlite: parse audit time: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func timeRange(query, col string, opts domain.ListOpts, args []any) (string, []any) {
	if opts.Since != nil {
		query += " AND " + col + " >= ?"
		args = append(args, formatTS(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND " + col + " <= ?"
		args = append(args, formatTS(*opts.Until))
	}
	return query, args
}

func page(query string, opts domain.ListOpts, args []any) (string, []any) {
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Offset)
	}
	return query, args
}
