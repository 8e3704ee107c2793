package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/muvi/internal/models"
)

type renderShotRequest struct {
	NegativePrompt string `json:"negative_prompt"`
}

// RenderShot handles POST /v1/projects/{id}/shots/{shotId}/render.
func (h *Handler) RenderShot(w http.ResponseWriter, r *http.Request) {
	var req renderShotRequest
	decodeOptionalBody(r, &req)
	shot, err := h.orch.RenderShot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "shotId"), req.NegativePrompt)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shot)
}

type editShotRequest struct {
	EditPrompt string   `json:"edit_prompt"`
	ExtraCast  []string `json:"extra_cast"`
	RefImage   string   `json:"ref_image"`
}

// EditShot handles POST /v1/projects/{id}/shots/{shotId}/edit.
func (h *Handler) EditShot(w http.ResponseWriter, r *http.Request) {
	var req editShotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	shot, err := h.orch.EditShot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "shotId"),
		req.EditPrompt, req.ExtraCast, req.RefImage)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shot)
}

// PrewarmUploads handles POST /v1/projects/{id}/prewarm.
func (h *Handler) PrewarmUploads(w http.ResponseWriter, r *http.Request) {
	uploaded, err := h.orch.PrewarmUploadCache(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"uploaded": uploaded})
}

// RenderBatch handles POST /v1/projects/{id}/render-batch: enqueues a render
// job for every un-rendered shot. Requires the Redis queue.
func (h *Handler) RenderBatch(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "Batch rendering requires REDIS_URL to be configured")
		return
	}
	projectID := chi.URLParam(r, "id")
	st, err := h.store.Load(r.Context(), projectID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	enqueued := 0
	for _, sh := range st.Storyboard.Shots {
		if sh.Render.Status == models.RenderStatusDone {
			continue
		}
		if err := h.queue.EnqueueRenderShot(r.Context(), projectID, sh.ShotID); err != nil {
			respondAppError(w, err)
			return
		}
		enqueued++
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}
