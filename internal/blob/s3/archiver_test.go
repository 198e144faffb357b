package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type memWriter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string]string{}, types: map[string]string{}}
}

func (m *memWriter) Upload(_ context.Context, key string, body []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(body)
	m.types[key] = contentType
	return nil
}

type auditRecorder struct{ events []string }

func (a *auditRecorder) Log(_ context.Context, runID, event string, _ map[string]any) error {
	a.events = append(a.events, runID+":"+event)
	return nil
}

func (a *auditRecorder) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestArchiveRunUploadsAllArtefacts(t *testing.T) {
	w := newMemWriter()
	audit := &auditRecorder{}
	a := NewArchiver(w, "/backtests/", discard())
	a.SetAuditStore(audit)

	csv := filepath.Join(t.TempDir(), "portfolio_timeseries.csv")
	require.NoError(t, os.WriteFile(csv, []byte("timestamp,mode\n"), 0o644))

	recs := []domain.TickRecord{{RunID: "r1", Seq: 1}, {RunID: "r1", Seq: 2}}
	sum := &domain.BacktestSummary{RunID: "r1", Steps: 2}

	keys, err := a.ArchiveRun(context.Background(), "r1", recs, sum, csv)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"backtests/r1/ticks.jsonl",
		"backtests/r1/summary.json",
		"backtests/r1/portfolio_timeseries.csv",
	}, keys)

	lines := strings.Split(strings.TrimSpace(w.objects["backtests/r1/ticks.jsonl"]), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, w.objects["backtests/r1/summary.json"], `"steps": 2`)
	assert.Equal(t, "text/csv", w.types["backtests/r1/portfolio_timeseries.csv"])
	assert.Equal(t, []string{"r1:archive.run"}, audit.events)
}

func TestArchiveRunStopsOnUploadError(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("bucket gone")
	a := NewArchiver(w, "", discard())

	keys, err := a.ArchiveRun(context.Background(), "r1", []domain.TickRecord{{Seq: 1}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r1/ticks.jsonl")
	assert.Empty(t, keys)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
