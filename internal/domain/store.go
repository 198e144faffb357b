package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TickStore persists per-tick records.
type TickStore interface {
	SaveTick(ctx context.Context, rec TickRecord) error
	ListTicks(ctx context.Context, runID string, opts ListOpts) ([]TickRecord, error)
}

// SummaryStore persists backtest summaries.
type SummaryStore interface {
	SaveSummary(ctx context.Context, s BacktestSummary) error
	GetSummary(ctx context.Context, runID string) (BacktestSummary, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	RunID     string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, runID, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Journal is the full persistence surface one backend provides.
type Journal interface {
	TickStore
	SummaryStore
	AuditStore
	Close() error
}
