package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type videoShotRequest struct {
	VideoModel string `json:"video_model"`
}

// GenerateShotVideo handles POST /v1/projects/{id}/shots/{shotId}/video.
func (h *Handler) GenerateShotVideo(w http.ResponseWriter, r *http.Request) {
	var req videoShotRequest
	decodeOptionalBody(r, &req)
	video, err := h.orch.GenerateShotVideo(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "shotId"), req.VideoModel)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, video)
}

type videoBatchRequest struct {
	ShotIDs    []string `json:"shot_ids"`
	VideoModel string   `json:"video_model"`
}

// GenerateVideoBatch handles POST /v1/projects/{id}/video/generate-batch.
func (h *Handler) GenerateVideoBatch(w http.ResponseWriter, r *http.Request) {
	var req videoBatchRequest
	decodeOptionalBody(r, &req)
	result, err := h.orch.GenerateVideosForShots(r.Context(), chi.URLParam(r, "id"), req.ShotIDs, req.VideoModel)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
