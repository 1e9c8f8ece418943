package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// StatusProvider exposes the running pipeline's capital and safety
// state. Implemented by the application.
type StatusProvider interface {
	CapitalState(ctx context.Context) (*types.CapitalState, error)
	KillSwitch() types.KillSwitchState
}

// StatusHandler serves the operator status API.
type StatusHandler struct {
	provider StatusProvider
	logger   *zap.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(provider StatusProvider, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		provider: provider,
		logger:   logger,
	}
}

// StatusResponse is the HTTP response for GET /api/status.
type StatusResponse struct {
	Timestamp       time.Time          `json:"timestamp"`
	StartingCapital float64            `json:"starting_capital"`
	CurrentCapital  float64            `json:"current_capital"`
	DailyPnL        float64            `json:"daily_pnl"`
	DailyPnLPct     float64            `json:"daily_pnl_pct"`
	TotalPnL        float64            `json:"total_pnl"`
	TotalPnLPct     float64            `json:"total_pnl_pct"`
	OpenPositions   int                `json:"open_positions"`
	TotalExposure   float64            `json:"total_exposure"`
	KillSwitch      KillSwitchResponse `json:"kill_switch"`
}

// KillSwitchResponse is the kill-switch portion of the status response.
type KillSwitchResponse struct {
	Active                bool      `json:"active"`
	Reason                string    `json:"reason,omitempty"`
	TriggeredAt           time.Time `json:"triggered_at,omitzero"`
	RequiresManualRestart bool      `json:"requires_manual_restart"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleStatus handles GET /api/status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	capital, err := h.provider.CapitalState(r.Context())
	if err != nil {
		h.logger.Error("status-capital-state-failed", zap.Error(err))
		h.writeError(w, "failed to compute capital state", http.StatusInternalServerError)
		return
	}

	ks := h.provider.KillSwitch()

	response := StatusResponse{
		Timestamp:       time.Now().UTC(),
		StartingCapital: capital.StartingCapital,
		CurrentCapital:  capital.CurrentCapital,
		DailyPnL:        capital.DailyPnL,
		DailyPnLPct:     capital.DailyPnLPct,
		TotalPnL:        capital.TotalPnL,
		TotalPnLPct:     capital.TotalPnLPct,
		OpenPositions:   capital.OpenPositions,
		TotalExposure:   capital.TotalExposure,
		KillSwitch: KillSwitchResponse{
			Active:                ks.Active,
			Reason:                ks.Reason,
			TriggeredAt:           ks.TriggeredAt,
			RequiresManualRestart: ks.RequiresManualRestart,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *StatusHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
