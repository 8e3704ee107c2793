// Package paths is the single source of truth for where a project's files
// live on disk and what /files/... URL each of them has. URLs stored in state
// stay stable when the workspace root moves; only the manager is re-anchored.
package paths

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/models"
)

type Manager struct {
	workspaceRoot string
}

// New creates a Manager rooted at workspaceRoot and ensures the global
// directory structure exists.
func New(workspaceRoot string) (*Manager, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	m := &Manager{workspaceRoot: abs}
	for _, dir := range []string{m.ProjectsDir(), m.TempDir(), m.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return m, nil
}

func (m *Manager) WorkspaceRoot() string { return m.workspaceRoot }

// ProjectsDir is the legacy location for projects without a project_location.
func (m *Manager) ProjectsDir() string { return filepath.Join(m.workspaceRoot, "projects") }

// TempDir is the global scratch directory (cleanup candidate).
func (m *Manager) TempDir() string { return filepath.Join(m.workspaceRoot, "temp") }

// CacheDir holds global cached downloads.
func (m *Manager) CacheDir() string { return filepath.Join(m.workspaceRoot, "cache") }

var unsafeChars = regexp.MustCompile(`[^\w\s\-_.]`)
var whitespace = regexp.MustCompile(`\s+`)

// SanitizeFilename strips a title down to a safe filename component.
func SanitizeFilename(name string, maxLength int) string {
	safe := unsafeChars.ReplaceAllString(name, "")
	safe = whitespace.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if maxLength > 0 && len(safe) > maxLength {
		safe = strings.TrimRight(safe[:maxLength], "_")
	}
	if safe == "" {
		return "unnamed"
	}
	return safe
}

// ProjectFolder resolves the project's root folder. project_location is the
// single source of truth; projects created before it existed fall back to
// <workspace>/projects/<title>_v<version>. The folder is created on first use.
func (m *Manager) ProjectFolder(state *models.State) (string, error) {
	var folder string
	if loc := state.Project.ProjectLocation; loc != "" {
		folder = loc
	} else {
		safeTitle := SanitizeFilename(state.Project.Title, 30)
		folder = filepath.Join(m.ProjectsDir(), fmt.Sprintf("%s_v%s", safeTitle, state.Project.CreatedVersion))
		log.Printf("[Paths] Project %s has no project_location, using legacy path: %s", state.Project.ID, folder)
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("failed to create project folder: %w", err)
	}
	return folder, nil
}

func (m *Manager) projectSubdir(state *models.State, name string) (string, error) {
	folder, err := m.ProjectFolder(state)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(folder, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s dir: %w", name, err)
	}
	return dir, nil
}

func (m *Manager) RendersDir(state *models.State) (string, error) { return m.projectSubdir(state, "renders") }
func (m *Manager) AudioDir(state *models.State) (string, error)   { return m.projectSubdir(state, "audio") }
func (m *Manager) VideoDir(state *models.State) (string, error)   { return m.projectSubdir(state, "video") }
func (m *Manager) ExportsDir(state *models.State) (string, error) { return m.projectSubdir(state, "exports") }
func (m *Manager) LLMDir(state *models.State) (string, error)     { return m.projectSubdir(state, "llm") }
func (m *Manager) ProjectTempDir(state *models.State) (string, error) {
	return m.projectSubdir(state, "temp")
}

// IsExternalURL reports whether url points outside the workspace.
func IsExternalURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// ToURL converts a filesystem path to its /files/... URL relative to the
// workspace root. External URLs pass through unchanged; paths outside the
// workspace keep only their basename.
func (m *Manager) ToURL(fsPath string) string {
	if IsExternalURL(fsPath) {
		return fsPath
	}
	rel, err := filepath.Rel(m.workspaceRoot, fsPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "/files/" + filepath.Base(fsPath)
	}
	return "/files/" + filepath.ToSlash(rel)
}

// FromURL converts a /files/... URL (or the legacy /renders/... form) back to
// a filesystem path. When the direct resolution does not exist and state is
// provided, the project folder is searched under renders/, video/, audio/ and
// the root, in that order. External URLs are an error.
func (m *Manager) FromURL(url string, state *models.State) (string, error) {
	switch {
	case strings.HasPrefix(url, "/files/"):
		rel := strings.TrimPrefix(url, "/files/")
		direct := filepath.Join(m.workspaceRoot, filepath.FromSlash(rel))
		if fileExists(direct) {
			return direct, nil
		}
		if state != nil {
			if found := m.findInProject(rel, state); found != "" {
				return found, nil
			}
		}
		return direct, nil

	case strings.HasPrefix(url, "/renders/"):
		// Legacy form: /renders/<name> lived under workspace_root/renders.
		rel := strings.TrimPrefix(url, "/renders/")
		direct := filepath.Join(m.workspaceRoot, filepath.FromSlash(rel))
		if fileExists(direct) {
			return direct, nil
		}
		nested := filepath.Join(m.workspaceRoot, "renders", filepath.FromSlash(rel))
		if fileExists(nested) {
			return nested, nil
		}
		if state != nil {
			if found := m.findInProject(rel, state); found != "" {
				return found, nil
			}
		}
		return direct, nil

	case IsExternalURL(url):
		return "", apperr.Validation("cannot convert external URL to filesystem path: %s", url)

	default:
		return "", apperr.Validation("invalid URL format: %s", url)
	}
}

// findInProject looks for a stored file inside the project folder, trying the
// exact relative path first, then the common subdirectories by basename.
func (m *Manager) findInProject(rel string, state *models.State) string {
	folder, err := m.ProjectFolder(state)
	if err != nil {
		return ""
	}
	if p := filepath.Join(folder, filepath.FromSlash(rel)); fileExists(p) {
		return p
	}
	base := filepath.Base(rel)
	for _, sub := range []string{"renders", "video", "audio", ""} {
		p := filepath.Join(folder, sub, base)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// TempFile returns a unique path in the global temp dir. The file itself is
// not created.
func (m *Manager) TempFile(prefix, suffix string) string {
	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString()[:8], suffix)
	return filepath.Join(m.TempDir(), name)
}

// ProjectTempFile returns a unique path in the project's temp dir.
func (m *Manager) ProjectTempFile(state *models.State, prefix, suffix string) (string, error) {
	dir, err := m.ProjectTempDir(state)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString()[:8], suffix)
	return filepath.Join(dir, name), nil
}

// CleanupTemp removes files older than maxAge from the global temp dir and
// reports how many were removed.
func (m *Manager) CleanupTemp(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	entries, err := os.ReadDir(m.TempDir())
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.TempDir(), e.Name())); err != nil {
				log.Printf("[Paths] Failed to remove temp file %s: %v", e.Name(), err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[Paths] Cleaned up %d temp files", removed)
	}
	return removed
}

// CleanupProjectTemp empties the project's temp folder.
func (m *Manager) CleanupProjectTemp(state *models.State) int {
	dir, err := m.ProjectTempDir(state)
	if err != nil {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
