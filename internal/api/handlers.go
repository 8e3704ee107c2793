package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/audio"
	"github.com/bobarin/muvi/internal/castmatrix"
	"github.com/bobarin/muvi/internal/costs"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/export"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
	"github.com/bobarin/muvi/internal/queue"
	"github.com/bobarin/muvi/internal/render"
	"github.com/bobarin/muvi/internal/settings"
	"github.com/bobarin/muvi/internal/state"
	"github.com/bobarin/muvi/internal/storyboard"
	"github.com/bobarin/muvi/internal/styles"
)

type Handler struct {
	store    *state.Store
	paths    *paths.Manager
	analyzer *audio.Analyzer
	planner  *storyboard.Planner
	graph    *castmatrix.Graph
	orch     *render.Orchestrator
	exporter *export.Exporter
	queue    *queue.Queue // nil when Redis is not configured
	session  *costs.Session
	debug    *debuglog.Logger
	settings settings.Store
}

func NewHandler(
	store *state.Store,
	pm *paths.Manager,
	analyzer *audio.Analyzer,
	planner *storyboard.Planner,
	graph *castmatrix.Graph,
	orch *render.Orchestrator,
	exporter *export.Exporter,
	q *queue.Queue,
	session *costs.Session,
	debug *debuglog.Logger,
	settingsStore settings.Store,
) *Handler {
	return &Handler{
		store:    store,
		paths:    pm,
		analyzer: analyzer,
		planner:  planner,
		graph:    graph,
		orch:     orch,
		exporter: exporter,
		queue:    q,
		session:  session,
		debug:    debug,
		settings: settingsStore,
	}
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("Failed to encode response: %v", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError translates the error taxonomy into an HTTP status.
func respondAppError(w http.ResponseWriter, err error) {
	respondError(w, apperr.HTTPStatus(err), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Health + catalogs
// ---------------------------------------------------------------------------

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": state.Version})
}

func (h *Handler) ListStyles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"styles": styles.List()})
}

func (h *Handler) ListVideoModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"models": render.ListVideoModels()})
}

func (h *Handler) GetSessionCosts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Snapshot())
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var s settings.Settings
	if !decodeBody(w, r, &s) {
		return
	}
	if err := h.settings.Save(r.Context(), &s); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

type createProjectRequest struct {
	Title            string `json:"title"`
	StylePreset      string `json:"style_preset"`
	Aspect           string `json:"aspect"`
	LLM              string `json:"llm"`
	ImageModel       string `json:"image_model"`
	VideoModel       string `json:"video_model"`
	UseWhisper       bool   `json:"use_whisper"`
	ProjectLocation  string `json:"project_location"`
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	defaults, err := h.settings.Load(r.Context())
	if err != nil {
		defaults = settings.Defaults(h.paths.WorkspaceRoot())
	}
	if req.StylePreset == "" {
		req.StylePreset = defaults.DefaultStyle
	}
	if req.LLM == "" {
		req.LLM = defaults.DefaultLLM
	}
	if req.ImageModel == "" {
		req.ImageModel = defaults.DefaultImageModel
	}
	if req.VideoModel == "" {
		req.VideoModel = defaults.DefaultVideoModel
	}
	if req.Aspect == "" {
		req.Aspect = string(models.AspectHorizontal)
	}
	if !styles.Valid(req.StylePreset) {
		respondError(w, http.StatusBadRequest, "Unknown style preset: "+req.StylePreset)
		return
	}

	st, err := h.store.Create(state.NewProjectParams{
		Title:            req.Title,
		StylePreset:      req.StylePreset,
		Aspect:           models.Aspect(req.Aspect),
		LLMPreference:    req.LLM,
		ImageModelChoice: models.ImageModel(req.ImageModel),
		VideoModelChoice: req.VideoModel,
		UseWhisper:       req.UseWhisper,
		ProjectLocation:  req.ProjectLocation,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// projectSummary is the lightweight list DTO.
type projectSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	StylePreset string  `json:"style_preset"`
	Aspect      string  `json:"aspect"`
	DurationSec float64 `json:"duration_sec"`
	Sequences   int     `json:"sequences"`
	Shots       int     `json:"shots"`
	Rendered    int     `json:"rendered"`
	UpdatedAt   string  `json:"updated_at"`
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	states := h.store.ListProjects(r.Context())
	summaries := make([]projectSummary, 0, len(states))
	for _, st := range states {
		rendered := 0
		for _, sh := range st.Storyboard.Shots {
			if sh.Render.Status == models.RenderStatusDone {
				rendered++
			}
		}
		summaries = append(summaries, projectSummary{
			ID:          st.Project.ID,
			Title:       st.Project.Title,
			StylePreset: st.Project.StylePreset,
			Aspect:      string(st.Project.Aspect),
			DurationSec: st.DurationSec(),
			Sequences:   len(st.Storyboard.Sequences),
			Shots:       len(st.Storyboard.Shots),
			Rendered:    rendered,
			UpdatedAt:   st.Project.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt > summaries[j].UpdatedAt })
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": summaries,
		"total":    len(summaries),
	})
}

type updateProjectSettingsRequest struct {
	Title       *string `json:"title"`
	StylePreset *string `json:"style_preset"`
	Aspect      *string `json:"aspect"`
	VideoModel  *string `json:"video_model"`
	UseWhisper  *bool   `json:"use_whisper"`
	ImageModel  *string `json:"image_model"`
}

// UpdateProjectSettings applies a partial update; changing the image model
// re-locks render_models.
func (h *Handler) UpdateProjectSettings(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req updateProjectSettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var updated *models.State
	err := h.store.WithProjectLock(projectID, func() error {
		st, err := h.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		if req.Title != nil && *req.Title != "" {
			st.Project.Title = *req.Title
		}
		if req.StylePreset != nil {
			if !styles.Valid(*req.StylePreset) {
				return apperr.Validation("unknown style preset %q", *req.StylePreset)
			}
			st.Project.StylePreset = *req.StylePreset
		}
		if req.Aspect != nil {
			if !models.ValidAspect(models.Aspect(*req.Aspect)) {
				return apperr.Validation("invalid aspect %q", *req.Aspect)
			}
			st.Project.Aspect = models.Aspect(*req.Aspect)
		}
		if req.VideoModel != nil {
			st.Project.VideoModelChoice = *req.VideoModel
		}
		if req.UseWhisper != nil {
			st.Project.UseWhisper = *req.UseWhisper
		}
		if req.ImageModel != nil {
			st.Project.ImageModelChoice = models.ImageModel(*req.ImageModel)
			st.Project.RenderModels = models.LockRenderModels(st.Project.ImageModelChoice)
		}
		if err := h.store.SaveLocked(st, true, false); err != nil {
			return err
		}
		updated = st
		return nil
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// GetLLMLogs lists the persisted backend exchanges for a project.
func (h *Handler) GetLLMLogs(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	names, err := h.debug.List(st)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": names})
}
