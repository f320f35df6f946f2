package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// CreationService submits and tracks market creation runs.
type CreationService interface {
	Submit(ctx context.Context, req domain.MarketCreationRequest) (domain.CreationRun, error)
	Run(runID string) (domain.CreationRun, error)
	Events(ctx context.Context, runID string) ([]domain.StatusEvent, error)
	Explain(err error) string
}

// CreationHandler serves the server-side market creation endpoints.
type CreationHandler struct {
	creation CreationService
	logger   *slog.Logger
}

// NewCreationHandler creates a CreationHandler.
func NewCreationHandler(creation CreationService, logger *slog.Logger) *CreationHandler {
	return &CreationHandler{
		creation: creation,
		logger:   logger.With(slog.String("handler", "creation")),
	}
}

// Submit validates a creation request and starts a run for it. The run
// continues after the response; poll GetRun or watch /ws for progress.
// POST /api/creation
func (h *CreationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.MarketCreationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = sanitize(req.Title)
	req.Category = sanitize(req.Category)
	req.Description = sanitize(req.Description)
	req.ResolutionSource = sanitize(req.ResolutionSource)
	req.ResolutionValue = sanitize(req.ResolutionValue)
	req.OracleSymbol = sanitize(req.OracleSymbol)
	req.Ticker = sanitize(req.Ticker)
	req.Tag = sanitize(req.Tag)

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	run, err := h.creation.Submit(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrNotReady):
			status = http.StatusServiceUnavailable
		case errors.Is(err, domain.ErrLockHeld):
			status = http.StatusConflict
		default:
			h.logger.ErrorContext(r.Context(), "submit creation failed", slog.String("error", err.Error()))
		}
		writeError(w, status, h.creation.Explain(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  run.ID,
		"status": run.Status,
	})
}

// GetRun returns a run's current state and the status events recorded so
// far.
// GET /api/creation/{runId}
func (h *CreationHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("runId")
	run, err := h.creation.Run(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "creation run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get creation run")
		return
	}

	events, err := h.creation.Events(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "read creation events failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
	}
	if events == nil {
		events = []domain.StatusEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"events": events,
	})
}
