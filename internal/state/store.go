// Package state owns the project document: load, save, validate, migrate.
// Every mutation of a project goes through the per-project lock so parallel
// renders never lose writes.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

// Version stamps project documents; saves migrate created_version forward.
const Version = "2.0.0"

// Downloader resolves external URLs into local files during migration.
// Satisfied by services.FalService.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

type Store struct {
	paths      *paths.Manager
	locks      *projectLocks
	downloader Downloader
}

func NewStore(pm *paths.Manager, downloader Downloader) *Store {
	return &Store{
		paths:      pm,
		locks:      newProjectLocks(),
		downloader: downloader,
	}
}

// WithProjectLock serializes fn against all other mutations of the project.
func (s *Store) WithProjectLock(projectID string, fn func() error) error {
	return s.locks.WithLock(projectID, fn)
}

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

// NewProjectParams carries the user's choices at project creation.
type NewProjectParams struct {
	Title            string
	StylePreset      string
	Aspect           models.Aspect
	LLMPreference    string
	ImageModelChoice models.ImageModel
	VideoModelChoice string
	UseWhisper       bool
	ProjectLocation  string
}

// Create builds a fresh state document, persists it, and returns it.
func (s *Store) Create(p NewProjectParams) (*models.State, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	if !models.ValidAspect(p.Aspect) {
		return nil, apperr.Validation("invalid aspect %q", p.Aspect)
	}

	now := models.NowISO(time.Now())
	location := p.ProjectLocation
	if location == "" {
		safe := paths.SanitizeFilename(p.Title, 30)
		location = filepath.Join(s.paths.ProjectsDir(), safe)
	}

	st := &models.State{
		Project: models.Project{
			ID:               uuid.NewString(),
			Title:            p.Title,
			StylePreset:      p.StylePreset,
			Aspect:           p.Aspect,
			LLMPreference:    p.LLMPreference,
			ImageModelChoice: p.ImageModelChoice,
			VideoModelChoice: p.VideoModelChoice,
			UseWhisper:       p.UseWhisper,
			CreatedAt:        now,
			UpdatedAt:        now,
			CreatedVersion:   Version,
			ProjectLocation:  location,
			RenderModels:     models.LockRenderModels(p.ImageModelChoice),
			FALUploadCache:   map[string]string{},
		},
		Cast: []models.CastMember{},
	}

	var saveErr error
	err := s.WithProjectLock(st.Project.ID, func() error {
		saveErr = s.saveLocked(st, true, false)
		return saveErr
	})
	if err != nil {
		return nil, err
	}
	if err := s.indexAdd(st.Project.ID, location); err != nil {
		log.Printf("[State] Failed to update project index: %v", err)
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// Index: project_id → project_location
// ---------------------------------------------------------------------------

func (s *Store) indexPath() string {
	return filepath.Join(s.paths.ProjectsDir(), "index.json")
}

func (s *Store) readIndex() map[string]string {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return map[string]string{}
	}
	idx := map[string]string{}
	if err := json.Unmarshal(data, &idx); err != nil {
		log.Printf("[State] Corrupt project index, rebuilding: %v", err)
		return map[string]string{}
	}
	return idx
}

func (s *Store) indexAdd(projectID, location string) error {
	idx := s.readIndex()
	idx[projectID] = location
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.indexPath(), data)
}

// ListProjects returns every known project's state, skipping entries whose
// documents are unreadable.
func (s *Store) ListProjects(ctx context.Context) []*models.State {
	var out []*models.State
	for id := range s.readIndex() {
		st, err := s.Load(ctx, id)
		if err != nil {
			log.Printf("[State] Skipping unreadable project %s: %v", id, err)
			continue
		}
		out = append(out, st)
	}
	return out
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// Load reads a project document. When both a legacy workspace stub and a
// project_location copy exist, the one with the newer updated_at wins. After
// load it recovers orphaned render files and migrates external URLs local.
func (s *Store) Load(ctx context.Context, projectID string) (*models.State, error) {
	var st *models.State
	err := s.WithProjectLock(projectID, func() error {
		loaded, err := s.loadLocked(projectID)
		if err != nil {
			return err
		}
		changed := s.recoverOrphanedRenders(loaded)
		if s.downloader != nil {
			if migrated := s.migrateFalToLocal(ctx, loaded); migrated {
				changed = true
			}
		}
		if changed {
			if err := s.saveLocked(loaded, false, false); err != nil {
				log.Printf("[State] Failed to persist recovery for %s: %v", projectID, err)
			}
		}
		st = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) loadLocked(projectID string) (*models.State, error) {
	stubPath := filepath.Join(s.paths.ProjectsDir(), projectID+".json")
	stub, stubErr := readState(stubPath)

	var located *models.State
	var locatedPath string
	if loc, ok := s.readIndex()[projectID]; ok {
		locatedPath = filepath.Join(loc, "project.json")
		located, _ = readState(locatedPath)
	}
	if located == nil && stub != nil && stub.Project.ProjectLocation != "" {
		locatedPath = filepath.Join(stub.Project.ProjectLocation, "project.json")
		located, _ = readState(locatedPath)
	}

	switch {
	case located == nil && stub == nil:
		if stubErr != nil && !os.IsNotExist(stubErr) {
			return nil, fmt.Errorf("failed to read project %s: %w", projectID, stubErr)
		}
		return nil, apperr.NotFound("project %s not found", projectID)
	case located == nil:
		return stub, nil
	case stub == nil:
		return located, nil
	default:
		// Both exist: the newer document wins.
		if stub.Project.UpdatedAt > located.Project.UpdatedAt {
			return stub, nil
		}
		return located, nil
	}
}

func readState(path string) (*models.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st models.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt project document %s: %w", path, err)
	}
	if st.Project.FALUploadCache == nil {
		st.Project.FALUploadCache = map[string]string{}
	}
	return &st, nil
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

// Save persists the document under the project lock. With validate=true the
// invariants are checked; violations are logged as warnings unless strict
// validation fails the save elsewhere. With force=false a version mismatch is
// refused so older binaries cannot clobber migrated documents.
func (s *Store) Save(st *models.State, validate, force bool) error {
	return s.WithProjectLock(st.Project.ID, func() error {
		return s.saveLocked(st, validate, force)
	})
}

// SaveLocked persists while the caller already holds the project lock via
// WithProjectLock. Required for the reload-mutate-save pattern.
func (s *Store) SaveLocked(st *models.State, validate, force bool) error {
	return s.saveLocked(st, validate, force)
}

// LoadLocked re-reads the document while the caller holds the project lock.
func (s *Store) LoadLocked(projectID string) (*models.State, error) {
	return s.loadLocked(projectID)
}

func (s *Store) saveLocked(st *models.State, validate, force bool) error {
	if st.Project.CreatedVersion != Version && !force && st.Project.CreatedVersion != "" {
		if !versionCompatible(st.Project.CreatedVersion) {
			return apperr.Validation("project version %s does not match %s (use force to migrate)",
				st.Project.CreatedVersion, Version)
		}
	}
	st.Project.CreatedVersion = Version
	st.Project.UpdatedAt = models.NowISO(time.Now())

	if validate {
		if errs := s.Validate(st); len(errs) > 0 {
			for _, e := range errs {
				log.Printf("[State] Validation warning for %s: %v", st.Project.ID, e)
			}
		}
	}

	folder, err := s.paths.ProjectFolder(st)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project document: %w", err)
	}
	if err := atomicWrite(filepath.Join(folder, "project.json"), data); err != nil {
		return fmt.Errorf("failed to write project document: %w", err)
	}

	// One canonical document only: drop any legacy workspace stub.
	stubPath := filepath.Join(s.paths.ProjectsDir(), st.Project.ID+".json")
	if _, err := os.Stat(stubPath); err == nil {
		if err := os.Remove(stubPath); err != nil {
			log.Printf("[State] Failed to remove legacy stub %s: %v", stubPath, err)
		}
	}

	if err := s.indexAdd(st.Project.ID, folder); err != nil {
		log.Printf("[State] Failed to update project index: %v", err)
	}
	return nil
}

// versionCompatible accepts documents from the same major version.
func versionCompatible(v string) bool {
	return strings.SplitN(v, ".", 2)[0] == strings.SplitN(Version, ".", 2)[0]
}

// atomicWrite writes via a temp file + rename so readers never observe a
// half-written document.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Paths exposes the path manager to collaborators holding a Store.
func (s *Store) Paths() *paths.Manager { return s.paths }
