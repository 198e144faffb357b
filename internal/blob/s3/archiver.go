package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Archiver uploads the artefacts of a finished run under
// {prefix}/{run_id}/.
type Archiver struct {
	writer Uploader
	prefix string
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing through w.
func NewArchiver(w Uploader, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: w,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// SetAuditStore records every archive in the audit log.
func (a *Archiver) SetAuditStore(s domain.AuditStore) { a.audit = s }

// ArchiveRun uploads the tick records as JSONL, the summary as JSON when
// non-nil, and every file in files by base name. It returns the object keys
// written.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, records []domain.TickRecord, summary *domain.BacktestSummary, files ...string) ([]string, error) {
	var keys []string

	if len(records) > 0 {
		buf, err := marshalJSONL(records)
		if err != nil {
			return keys, fmt.Errorf("s3blob: archive ticks marshal: %w", err)
		}
		key := a.key(runID, "ticks.jsonl")
		if err := a.put(ctx, key, buf, "application/x-ndjson"); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	if summary != nil {
		buf, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return keys, fmt.Errorf("s3blob: archive summary marshal: %w", err)
		}
		key := a.key(runID, "summary.json")
		if err := a.put(ctx, key, buf, "application/json"); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	for _, f := range files {
		buf, err := os.ReadFile(f)
		if err != nil {
			return keys, fmt.Errorf("s3blob: archive read %s: %w", f, err)
		}
		key := a.key(runID, filepath.Base(f))
		if err := a.put(ctx, key, buf, contentType(f)); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	a.logger.InfoContext(ctx, "run archived",
		slog.String("run_id", runID),
		slog.Int("objects", len(keys)),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, runID, "archive.run", map[string]any{
			"keys":  keys,
			"ticks": len(records),
		}); err != nil {
			return keys, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return keys, nil
}

func (a *Archiver) put(ctx context.Context, key string, buf []byte, ct string) error {
	if err := a.writer.Upload(ctx, key, buf, ct); err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) key(runID, name string) string {
	if a.prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(a.prefix, runID, name)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
