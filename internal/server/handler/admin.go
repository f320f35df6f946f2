package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pascal/internal/blob/s3"
	"github.com/alanyoungcy/pascal/internal/domain"
)

// CatalogExporter snapshots the catalog to object storage.
type CatalogExporter interface {
	ExportCatalog(ctx context.Context) (s3blob.ExportResult, error)
}

// AdminHandler serves the gated operator endpoints: catalog exports and the
// audit log. Any dependency may be nil, which turns its endpoints into 503s.
type AdminHandler struct {
	exporter CatalogExporter
	exports  domain.BlobLister
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(exporter CatalogExporter, exports domain.BlobLister, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		exporter: exporter,
		exports:  exports,
		audit:    audit,
		logger:   logger.With(slog.String("handler", "admin")),
	}
}

// Export writes the current catalog to object storage.
// POST /api/admin/export
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	res, err := h.exporter.ExportCatalog(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "object storage not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "catalog export failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "catalog export failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListExports lists the catalog exports written so far.
// GET /api/admin/exports
func (h *AdminHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	infos, err := h.exports.List(r.Context(), s3blob.CatalogPrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list exports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list exports")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": infos})
}

type auditEntryView struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"createdAt"`
}

// ListAudit returns audit entries, newest first.
// GET /api/admin/audit?event=&since=&until=&limit=&offset=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}
	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": views,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
