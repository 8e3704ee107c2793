package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/muvi/internal/castmatrix"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

// AddCast handles POST /v1/projects/{id}/cast (multipart: file, role, name,
// impact).
func (h *Handler) AddCast(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	st, err := h.store.Load(r.Context(), projectID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Reference photo is required")
		return
	}
	defer file.Close()

	role := models.Role(r.FormValue("role"))
	name := r.FormValue("name")
	impact := 0.5
	if v := r.FormValue("impact"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid impact value")
			return
		}
		impact = parsed
	}

	rendersDir, err := h.paths.RendersDir(st)
	if err != nil {
		respondAppError(w, err)
		return
	}
	destPath := filepath.Join(rendersDir, "upload_"+paths.SanitizeFilename(header.Filename, 60))
	if err := saveUpload(file, destPath); err != nil {
		respondAppError(w, err)
		return
	}

	member, err := h.graph.AddCast(r.Context(), projectID, destPath, name, role, impact)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

// AddCastReference handles POST /v1/projects/{id}/cast/{castId}/reference
// (multipart: file, role).
func (h *Handler) AddCastReference(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	st, err := h.store.Load(r.Context(), projectID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Reference photo is required")
		return
	}
	defer file.Close()

	rendersDir, err := h.paths.RendersDir(st)
	if err != nil {
		respondAppError(w, err)
		return
	}
	destPath := filepath.Join(rendersDir, "upload_"+paths.SanitizeFilename(header.Filename, 60))
	if err := saveUpload(file, destPath); err != nil {
		respondAppError(w, err)
		return
	}

	err = h.graph.AddCastReference(r.Context(), projectID, chi.URLParam(r, "castId"), destPath, r.FormValue("role"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

type castPatchRequest struct {
	Name        *string  `json:"name"`
	Role        *string  `json:"role"`
	Impact      *float64 `json:"impact"`
	PromptExtra *string  `json:"prompt_extra"`
}

// UpdateCast handles PATCH /v1/projects/{id}/cast/{castId}.
func (h *Handler) UpdateCast(w http.ResponseWriter, r *http.Request) {
	var req castPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := castmatrix.CastPatch{
		Name:        req.Name,
		Impact:      req.Impact,
		PromptExtra: req.PromptExtra,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		patch.Role = &role
	}
	if err := h.graph.UpdateCast(chi.URLParam(r, "id"), chi.URLParam(r, "castId"), patch); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteCast handles DELETE /v1/projects/{id}/cast/{castId}.
func (h *Handler) DeleteCast(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.DeleteCast(chi.URLParam(r, "id"), chi.URLParam(r, "castId")); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GenerateCanonicalRefs handles POST
// /v1/projects/{id}/cast/{castId}/canonical-refs.
func (h *Handler) GenerateCanonicalRefs(w http.ResponseWriter, r *http.Request) {
	refs, err := h.graph.GenerateCanonicalRefs(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "castId"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, refs)
}

type rerenderRefRequest struct {
	Which string `json:"which"` // "a" or "b"
}

// RerenderRef handles POST /v1/projects/{id}/cast/{castId}/rerender-ref.
func (h *Handler) RerenderRef(w http.ResponseWriter, r *http.Request) {
	var req rerenderRefRequest
	if !decodeBody(w, r, &req) {
		return
	}
	url, err := h.graph.RegenerateRef(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "castId"), req.Which)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
