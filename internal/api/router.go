package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router, passed from main.go so the
// router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey protects /v1; empty skips auth (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is comma-separated; empty means "*" (dev mode).
	CorsAllowedOrigins string

	// WorkspaceRoot is served read-only under /files/ so every stored
	// /files/... URL in project state resolves over HTTP.
	WorkspaceRoot string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	// Stored /files/... URLs resolve here.
	fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.WorkspaceRoot)))
	r.Get("/files/*", func(w http.ResponseWriter, req *http.Request) {
		fileServer.ServeHTTP(w, req)
	})

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Catalogs + session state
		r.Get("/styles", h.ListStyles)
		r.Get("/video/models", h.ListVideoModels)
		r.Get("/costs", h.GetSessionCosts)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.SaveSettings)

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Patch("/projects/{id}/settings", h.UpdateProjectSettings)
		r.Get("/projects/{id}/llm-logs", h.GetLLMLogs)

		// Audio
		r.Post("/projects/{id}/audio", h.UploadAudio)
		r.Patch("/projects/{id}/audio/bpm", h.PatchBPM)
		r.Patch("/projects/{id}/audio/lyrics", h.PatchLyrics)

		// Cast + canonical refs
		r.Post("/projects/{id}/cast", h.AddCast)
		r.Patch("/projects/{id}/cast/{castId}", h.UpdateCast)
		r.Delete("/projects/{id}/cast/{castId}", h.DeleteCast)
		r.Post("/projects/{id}/cast/{castId}/reference", h.AddCastReference)
		r.Post("/projects/{id}/cast/{castId}/canonical-refs", h.GenerateCanonicalRefs)
		r.Post("/projects/{id}/cast/{castId}/rerender-ref", h.RerenderRef)

		// Storyboard
		r.Post("/projects/{id}/sequences/build", h.BuildSequences)
		r.Post("/projects/{id}/sequences/repair", h.RepairSequences)
		r.Post("/projects/{id}/sequences/{seqId}/expand", h.ExpandSequence)
		r.Post("/projects/{id}/shots/expand", h.ExpandAllShots)
		r.Post("/projects/{id}/shots/tighten", h.TightenShots)

		// Scenes
		r.Post("/projects/{id}/scenes/autogen", h.AutogenScenes)
		r.Post("/projects/{id}/scenes/{sceneId}/render", h.RenderScene)
		r.Patch("/projects/{id}/scenes/{sceneId}/locks", h.PatchSceneLocks)

		// Rendering
		r.Post("/projects/{id}/shots/{shotId}/render", h.RenderShot)
		r.Post("/projects/{id}/shots/{shotId}/edit", h.EditShot)
		r.Post("/projects/{id}/render-batch", h.RenderBatch)
		r.Post("/projects/{id}/prewarm", h.PrewarmUploads)

		// Video
		r.Post("/projects/{id}/shots/{shotId}/video", h.GenerateShotVideo)
		r.Post("/projects/{id}/video/generate-batch", h.GenerateVideoBatch)

		// Export
		r.Post("/projects/{id}/export", h.ExportVideo)
		r.Get("/projects/{id}/export/status", h.ExportStatus)
	})

	return r
}
