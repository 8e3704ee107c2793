package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Workspace
	WorkspaceRoot string // Global root for temp/cache and legacy project folders

	// FAL (image, video and audio generation backends)
	FalKey string

	// LLM providers — at least one key must be set
	OpenAIKey string
	GeminiKey string

	// Redis (batch job queue — optional; batch endpoints need it)
	RedisURL string

	// Postgres (user settings — optional; file fallback otherwise)
	DatabaseURL string

	// Worker
	WorkerEnabled     bool
	WorkerConcurrency int

	// Generation concurrency
	ImagePermits int
	VideoPermits int

	// Costs
	PricingRefreshURL string

	// Housekeeping
	TempMaxAgeHours int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		WorkspaceRoot:      getEnv("WORKSPACE_ROOT", "./data"),
		FalKey:             getEnv("FAL_KEY", ""),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		ImagePermits:       getEnvInt("IMAGE_CONCURRENCY", 6),
		VideoPermits:       getEnvInt("VIDEO_CONCURRENCY", 8),
		PricingRefreshURL:  getEnv("PRICING_REFRESH_URL", ""),
		TempMaxAgeHours:    getEnvInt("TEMP_MAX_AGE_HOURS", 24),
	}

	// Validate required credentials up front so misconfiguration fails at
	// startup, not mid-pipeline.
	if cfg.FalKey == "" {
		return nil, fmt.Errorf("FAL_KEY is required")
	}
	if cfg.OpenAIKey == "" && cfg.GeminiKey == "" {
		return nil, fmt.Errorf("either OPENAI_API_KEY or GEMINI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
