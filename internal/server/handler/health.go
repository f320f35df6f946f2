package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Check probes one dependency. It returns domain.ErrNotConfigured for a
// dependency that was never set up.
type Check func(ctx context.Context) error

// ReadyFunc reports whether the operator wallet can submit instructions.
type ReadyFunc func() error

// StatusHandler reports the backend mode, the operator wallet and the state
// of every dependency.
type StatusHandler struct {
	mode     string
	operator string
	ready    ReadyFunc
	checks   map[string]Check
}

// NewStatusHandler creates a StatusHandler. ready may be nil.
func NewStatusHandler(mode, operator string, ready ReadyFunc, checks map[string]Check) *StatusHandler {
	return &StatusHandler{mode: mode, operator: operator, ready: ready, checks: checks}
}

// GetStatus responds with the mode, wallet readiness and dependency states.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		switch err := check(ctx); {
		case err == nil:
			deps[name] = "ok"
		case errors.Is(err, domain.ErrNotConfigured):
			deps[name] = "not configured"
		default:
			deps[name] = "unavailable"
		}
	}

	walletReady := h.ready != nil && h.ready() == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":         h.mode,
		"operator":     h.operator,
		"wallet_ready": walletReady,
		"dependencies": deps,
	})
}
