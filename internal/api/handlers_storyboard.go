package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type llmRequest struct {
	LLM string `json:"llm"`
}

// BuildSequences handles POST /v1/projects/{id}/sequences/build.
func (h *Handler) BuildSequences(w http.ResponseWriter, r *http.Request) {
	var req llmRequest
	decodeOptionalBody(r, &req)
	board, err := h.planner.BuildSequences(r.Context(), chi.URLParam(r, "id"), req.LLM)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, board)
}

// RepairSequences handles POST /v1/projects/{id}/sequences/repair.
func (h *Handler) RepairSequences(w http.ResponseWriter, r *http.Request) {
	report, err := h.planner.RepairTimeline(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ExpandAllShots handles POST /v1/projects/{id}/shots/expand.
func (h *Handler) ExpandAllShots(w http.ResponseWriter, r *http.Request) {
	var req llmRequest
	decodeOptionalBody(r, &req)
	total, err := h.planner.ExpandAll(r.Context(), chi.URLParam(r, "id"), req.LLM)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"shots": total})
}

// ExpandSequence handles POST /v1/projects/{id}/sequences/{seqId}/expand.
func (h *Handler) ExpandSequence(w http.ResponseWriter, r *http.Request) {
	var req llmRequest
	decodeOptionalBody(r, &req)
	n, err := h.planner.ExpandSequence(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "seqId"), req.LLM)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"shots": n})
}

// TightenShots handles POST /v1/projects/{id}/shots/tighten.
func (h *Handler) TightenShots(w http.ResponseWriter, r *http.Request) {
	adjusted, err := h.planner.TightenShots(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"adjusted": adjusted})
}
