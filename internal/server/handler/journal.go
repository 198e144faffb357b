package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// JournalHandler serves tick records, backtest summaries and the audit log.
type JournalHandler struct {
	journal    domain.Journal
	currentRun string
	logger     *slog.Logger
}

// NewJournalHandler creates a JournalHandler. currentRun is used when a
// request names no run.
func NewJournalHandler(journal domain.Journal, currentRun string, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		journal:    journal,
		currentRun: currentRun,
		logger:     logger.With(slog.String("handler", "journal")),
	}
}

// ListTicks returns tick records of ?run_id (default: the current run).
// GET /api/ticks
func (h *JournalHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = h.currentRun
	}
	recs, err := h.journal.ListTicks(r.Context(), runID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list ticks failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list ticks")
		return
	}
	if recs == nil {
		recs = []domain.TickRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetSummary returns the summary of a backtest run.
// GET /api/backtests/{run_id}
func (h *JournalHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.journal.GetSummary(r.Context(), r.PathValue("run_id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "summary not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get summary failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListAudit returns audit entries, newest first.
// GET /api/audit
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.journal.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
