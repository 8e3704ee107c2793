package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/muvi/internal/api"
	"github.com/bobarin/muvi/internal/audio"
	"github.com/bobarin/muvi/internal/castmatrix"
	"github.com/bobarin/muvi/internal/config"
	"github.com/bobarin/muvi/internal/costs"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/export"
	"github.com/bobarin/muvi/internal/paths"
	"github.com/bobarin/muvi/internal/queue"
	"github.com/bobarin/muvi/internal/render"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/settings"
	"github.com/bobarin/muvi/internal/state"
	"github.com/bobarin/muvi/internal/storyboard"
	"github.com/bobarin/muvi/internal/worker"
)

func main() {
	log.Println("Starting Muvi API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Path manager anchors every /files/ URL.
	pm, err := paths.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Fatalf("Failed to initialize workspace: %v", err)
	}
	log.Printf("Workspace root: %s", pm.WorkspaceRoot())

	// External backends
	fal := services.NewFalService(cfg.FalKey)
	muxer, err := services.NewFFmpegMuxer(pm.TempDir())
	if err != nil {
		log.Fatalf("Failed to initialize muxer: %v", err)
	}

	// State store with download-backed migration
	store := state.NewStore(pm, fal)
	debug := debuglog.New(pm)
	session := costs.NewSession()
	pricing := costs.NewPricing(cfg.PricingRefreshURL)
	pricing.Refresh()

	llmFactory := func(preference string) (services.LLMProvider, error) {
		return services.NewLLMProvider(preference, cfg.OpenAIKey, cfg.GeminiKey)
	}

	// Pipeline components
	analyzer := audio.NewAnalyzer(fal, muxer, debug)
	orch := render.NewOrchestrator(store, pm, fal, session, pricing, debug, muxer,
		int64(cfg.ImagePermits), int64(cfg.VideoPermits))
	graph := castmatrix.NewGraph(store, pm, orch, session, pricing, debug, llmFactory)
	planner := storyboard.NewPlanner(store, session, pricing, debug, llmFactory)
	statusBoard := export.NewStatusBoard()
	exporter := export.NewExporter(store, pm, muxer, orch, statusBoard)

	// Settings: Postgres when configured, workspace file otherwise
	defaults := settings.Defaults(pm.WorkspaceRoot())
	var settingsStore settings.Store
	if cfg.DatabaseURL != "" {
		pg, err := settings.NewPostgresStore(cfg.DatabaseURL, defaults)
		if err != nil {
			log.Fatalf("Failed to connect to settings database: %v", err)
		}
		defer pg.Close()
		settingsStore = pg
		log.Println("Settings store: postgres")
	} else {
		settingsStore = settings.NewFileStore(pm.WorkspaceRoot(), defaults)
		log.Println("Settings store: workspace file")
	}

	// Batch queue is optional; without it only the batch endpoints degrade.
	var q *queue.Queue
	if cfg.RedisURL != "" {
		q, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		log.Println("Connected to Redis queue")
	} else {
		log.Println("REDIS_URL not set — batch endpoints disabled")
	}

	handler := api.NewHandler(store, pm, analyzer, planner, graph, orch, exporter, q, session, debug, settingsStore)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		WorkspaceRoot:      pm.WorkspaceRoot(),
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Background worker for the batch queues
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled && q != nil {
		log.Println("Worker enabled, starting background processing...")
		w := worker.New(q, orch)
		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.WorkerConcurrency)
	}

	// Housekeeping: temp cleanup and price refresh on timers
	stopHousekeeping := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pm.CleanupTemp(time.Duration(cfg.TempMaxAgeHours) * time.Hour)
			case <-stopHousekeeping:
				return
			}
		}
	}()
	go pricing.RefreshLoop(6*time.Hour, stopHousekeeping)

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	close(stopHousekeeping)
	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
