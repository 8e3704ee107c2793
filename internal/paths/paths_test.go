package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	return m
}

func testState(location string) *models.State {
	return &models.State{
		Project: models.Project{
			ID:              "p1",
			Title:           "Test Project",
			CreatedVersion:  "2.0.0",
			ProjectLocation: location,
		},
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Night Drive":       "Night_Drive",
		"a/b\\c:d*e":        "abcde",
		"  spaced   out  ":  "spaced_out",
		"":                  "unnamed",
		"///":               "unnamed",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeFilename(in, 100), "input %q", in)
	}

	long := SanitizeFilename("this_is_a_very_long_title_indeed", 10)
	require.LessOrEqual(t, len(long), 10)
}

func TestProjectFolderUsesLocation(t *testing.T) {
	m := newTestManager(t)
	loc := filepath.Join(t.TempDir(), "MyVideo")
	st := testState(loc)

	folder, err := m.ProjectFolder(st)
	require.NoError(t, err)
	require.Equal(t, loc, folder)
	require.DirExists(t, folder)
}

func TestProjectFolderLegacyFallback(t *testing.T) {
	m := newTestManager(t)
	st := testState("")

	folder, err := m.ProjectFolder(st)
	require.NoError(t, err)
	require.Contains(t, folder, "Test_Project_v2.0.0")
	require.Contains(t, folder, m.ProjectsDir())
}

func TestToURLFromURLRoundTrip(t *testing.T) {
	m := newTestManager(t)

	fsPath := filepath.Join(m.WorkspaceRoot(), "projects", "demo", "renders", "shot.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(fsPath), 0o755))
	require.NoError(t, os.WriteFile(fsPath, []byte("x"), 0o644))

	url := m.ToURL(fsPath)
	require.Equal(t, "/files/projects/demo/renders/shot.png", url)

	back, err := m.FromURL(url, nil)
	require.NoError(t, err)
	require.Equal(t, fsPath, back)
}

func TestToURLPassesThroughExternal(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, "https://cdn.example/x.png", m.ToURL("https://cdn.example/x.png"))
}

func TestFromURLRejectsExternal(t *testing.T) {
	m := newTestManager(t)
	_, err := m.FromURL("https://cdn.example/x.png", nil)
	require.Error(t, err)
}

func TestFromURLSearchesProjectFolder(t *testing.T) {
	m := newTestManager(t)
	loc := filepath.Join(t.TempDir(), "Elsewhere")
	st := testState(loc)

	// File lives in the project's renders/ but the URL references a path
	// that no longer exists under the workspace root.
	rendersDir, err := m.RendersDir(st)
	require.NoError(t, err)
	target := filepath.Join(rendersDir, "cast_1.png")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	found, err := m.FromURL("/files/projects/old_home/renders/cast_1.png", st)
	require.NoError(t, err)
	require.Equal(t, target, found)
}

func TestFromURLLegacyRenders(t *testing.T) {
	m := newTestManager(t)
	legacy := filepath.Join(m.WorkspaceRoot(), "renders", "old.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacy), 0o755))
	require.NoError(t, os.WriteFile(legacy, []byte("x"), 0o644))

	found, err := m.FromURL("/renders/old.png", nil)
	require.NoError(t, err)
	require.Equal(t, legacy, found)
}

func TestCleanupTemp(t *testing.T) {
	m := newTestManager(t)

	oldFile := filepath.Join(m.TempDir(), "old.bin")
	newFile := filepath.Join(m.TempDir(), "new.bin")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newFile, []byte("x"), 0o644))

	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	removed := m.CleanupTemp(24 * time.Hour)
	require.Equal(t, 1, removed)
	require.NoFileExists(t, oldFile)
	require.FileExists(t, newFile)
}

func TestTempFileUnique(t *testing.T) {
	m := newTestManager(t)
	a := m.TempFile("clip", ".mp4")
	b := m.TempFile("clip", ".mp4")
	require.NotEqual(t, a, b)
	require.Contains(t, a, m.TempDir())
}
