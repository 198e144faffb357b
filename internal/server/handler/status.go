package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// RunStatus describes the running loop.
type RunStatus struct {
	RunID     string      `json:"run_id"`
	Mode      domain.Mode `json:"mode"`
	RunMode   string      `json:"run_mode"`
	Execute   bool        `json:"execute"`
	State     string      `json:"state"`
	Ticks     int64       `json:"ticks"`
	Symbols   []string    `json:"symbols"`
	StartedAt time.Time   `json:"started_at"`
}

// RunInfo exposes the running loop to the API.
type RunInfo interface {
	Status() RunStatus
	Portfolio() domain.PortfolioView
}

// StatusHandler serves run status and the current portfolio.
type StatusHandler struct {
	run RunInfo
}

// NewStatusHandler creates a StatusHandler over run.
func NewStatusHandler(run RunInfo) *StatusHandler {
	return &StatusHandler{run: run}
}

// GetStatus responds with the run status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.run.Status())
}

// GetPortfolio responds with the current portfolio view.
// GET /api/portfolio
func (h *StatusHandler) GetPortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.run.Portfolio())
}
