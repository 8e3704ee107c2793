package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AutogenScenes handles POST /v1/projects/{id}/scenes/autogen.
func (h *Handler) AutogenScenes(w http.ResponseWriter, r *http.Request) {
	var req llmRequest
	decodeOptionalBody(r, &req)
	scenes, err := h.graph.AutogenScenes(r.Context(), chi.URLParam(r, "id"), req.LLM)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"scenes": scenes})
}

// RenderScene handles POST /v1/projects/{id}/scenes/{sceneId}/render.
func (h *Handler) RenderScene(w http.ResponseWriter, r *http.Request) {
	scene, err := h.graph.RenderScene(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sceneId"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scene)
}

type sceneLocksRequest struct {
	DecorLocked    *bool `json:"decor_locked"`
	WardrobeLocked *bool `json:"wardrobe_locked"`
}

// PatchSceneLocks handles PATCH /v1/projects/{id}/scenes/{sceneId}/locks.
func (h *Handler) PatchSceneLocks(w http.ResponseWriter, r *http.Request) {
	var req sceneLocksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.graph.SetSceneLocks(chi.URLParam(r, "id"), chi.URLParam(r, "sceneId"), req.DecorLocked, req.WardrobeLocked)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// decodeOptionalBody decodes a JSON body when one is present; an empty or
// malformed body just leaves the defaults.
func decodeOptionalBody(r *http.Request, into interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(into)
}
