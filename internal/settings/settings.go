// Package settings persists user-level preferences: the workspace root and
// default model choices applied to new projects. Backed by Postgres when
// DATABASE_URL is configured, a workspace JSON file otherwise.
package settings

import (
	"context"
)

// Settings is the user preference record.
type Settings struct {
	WorkspaceRoot     string `json:"workspace_root"`
	DefaultStyle      string `json:"default_style"`
	DefaultLLM        string `json:"default_llm"`
	DefaultImageModel string `json:"default_image_model"`
	DefaultVideoModel string `json:"default_video_model"`
}

// Store loads and saves the user settings record.
type Store interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Defaults returns the settings applied before the user has saved anything.
func Defaults(workspaceRoot string) *Settings {
	return &Settings{
		WorkspaceRoot:     workspaceRoot,
		DefaultStyle:      "cinematic",
		DefaultLLM:        "openai",
		DefaultImageModel: "nanobanana",
		DefaultVideoModel: "ltx2",
	}
}

// merge fills blank fields on loaded settings from the defaults.
func merge(loaded, defaults *Settings) *Settings {
	if loaded == nil {
		return defaults
	}
	if loaded.WorkspaceRoot == "" {
		loaded.WorkspaceRoot = defaults.WorkspaceRoot
	}
	if loaded.DefaultStyle == "" {
		loaded.DefaultStyle = defaults.DefaultStyle
	}
	if loaded.DefaultLLM == "" {
		loaded.DefaultLLM = defaults.DefaultLLM
	}
	if loaded.DefaultImageModel == "" {
		loaded.DefaultImageModel = defaults.DefaultImageModel
	}
	if loaded.DefaultVideoModel == "" {
		loaded.DefaultVideoModel = defaults.DefaultVideoModel
	}
	return loaded
}
