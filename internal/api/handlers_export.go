package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/muvi/internal/export"
)

// ExportVideo handles POST /v1/projects/{id}/export.
func (h *Handler) ExportVideo(w http.ResponseWriter, r *http.Request) {
	var opts export.Options
	decodeOptionalBody(r, &opts)
	result, err := h.exporter.Export(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ExportStatus handles GET /v1/projects/{id}/export/status.
func (h *Handler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.exporter.Status(chi.URLParam(r, "id")))
}
