package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

func newTestStore(t *testing.T) (*Store, *paths.Manager) {
	t.Helper()
	pm, err := paths.New(t.TempDir())
	require.NoError(t, err)
	return NewStore(pm, nil), pm
}

func createTestProject(t *testing.T, s *Store) *models.State {
	t.Helper()
	st, err := s.Create(NewProjectParams{
		Title:            "Test Video",
		StylePreset:      "cinematic",
		Aspect:           models.AspectHorizontal,
		LLMPreference:    "openai",
		ImageModelChoice: models.ImageModelNanobanana,
		VideoModelChoice: "ltx2",
	})
	require.NoError(t, err)
	return st
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	created := createTestProject(t, s)

	require.NotEmpty(t, created.Project.ID)
	require.Equal(t, Version, created.Project.CreatedVersion)
	require.FileExists(t, filepath.Join(created.Project.ProjectLocation, "project.json"))

	loaded, err := s.Load(context.Background(), created.Project.ID)
	require.NoError(t, err)

	// Round trip is identity modulo updated_at.
	loaded.Project.UpdatedAt = created.Project.UpdatedAt
	require.Equal(t, created.Project, loaded.Project)
}

func TestCreateRequiresTitleAndAspect(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Create(NewProjectParams{Title: "", Aspect: models.AspectVertical})
	require.Error(t, err)

	_, err = s.Create(NewProjectParams{Title: "x", Aspect: "diagonal"})
	require.Error(t, err)
}

func TestLoadUnknownProject(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	require.Error(t, err)
}

func TestSaveRefusesIncompatibleVersion(t *testing.T) {
	s, _ := newTestStore(t)
	st := createTestProject(t, s)

	st.Project.CreatedVersion = "1.4.0"
	err := s.Save(st, false, false)
	require.Error(t, err)

	// force migrates the document forward.
	st.Project.CreatedVersion = "1.4.0"
	require.NoError(t, s.Save(st, false, true))
	require.Equal(t, Version, st.Project.CreatedVersion)
}

func TestConcurrentMutationsNoLostWrites(t *testing.T) {
	s, _ := newTestStore(t)
	st := createTestProject(t, s)
	projectID := st.Project.ID

	// Seed a storyboard with N shots.
	const n = 20
	require.NoError(t, s.WithProjectLock(projectID, func() error {
		fresh, err := s.LoadLocked(projectID)
		if err != nil {
			return err
		}
		fresh.AudioDNA = &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 100}}
		fresh.Storyboard.Sequences = []models.Sequence{{
			SequenceID: "seq_01", Label: "all", Start: 0, End: 100,
			StructureType: models.StructureVerse, Energy: 0.5,
		}}
		for i := 0; i < n; i++ {
			fresh.Storyboard.Shots = append(fresh.Storyboard.Shots, models.Shot{
				ShotID:        fmt.Sprintf("seq_01_sh%02d", i+1),
				SequenceID:    "seq_01",
				Start:         float64(i) * 5,
				End:           float64(i+1) * 5,
				StructureType: models.StructureVerse,
				Energy:        0.5,
			})
		}
		return s.SaveLocked(fresh, false, false)
	}))

	// N goroutines each mutate a distinct shot via reload-mutate-save.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			shotID := fmt.Sprintf("seq_01_sh%02d", i+1)
			err := s.WithProjectLock(projectID, func() error {
				fresh, err := s.LoadLocked(projectID)
				if err != nil {
					return err
				}
				sh := fresh.FindShot(shotID)
				sh.Render.Status = models.RenderStatusError
				sh.Render.Error = shotID
				return s.SaveLocked(fresh, false, false)
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := s.Load(context.Background(), projectID)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		shotID := fmt.Sprintf("seq_01_sh%02d", i+1)
		sh := final.FindShot(shotID)
		require.NotNil(t, sh)
		require.Equal(t, models.RenderStatusError, sh.Render.Status, "lost write on %s", shotID)
		require.Equal(t, shotID, sh.Render.Error)
	}
}

func TestRecoverOrphanedRenders(t *testing.T) {
	s, pm := newTestStore(t)
	st := createTestProject(t, s)
	projectID := st.Project.ID

	require.NoError(t, s.WithProjectLock(projectID, func() error {
		fresh, err := s.LoadLocked(projectID)
		if err != nil {
			return err
		}
		fresh.AudioDNA = &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 10}}
		fresh.Storyboard.Sequences = []models.Sequence{{
			SequenceID: "seq_01", Start: 0, End: 10, StructureType: models.StructureVerse,
		}}
		fresh.Storyboard.Shots = []models.Shot{{
			ShotID: "seq_01_sh01", SequenceID: "seq_01", Start: 0, End: 10,
			StructureType: models.StructureVerse,
			Render:        models.Render{Status: models.RenderStatusNone},
		}}
		return s.SaveLocked(fresh, false, false)
	}))

	// Drop the render file on disk as if a crash lost the state update.
	rendersDir, err := pm.RendersDir(st)
	require.NoError(t, err)
	renderPath := filepath.Join(rendersDir, RenderFileName("seq_01_sh01")+".png")
	require.NoError(t, os.WriteFile(renderPath, []byte("png"), 0o644))

	loaded, err := s.Load(context.Background(), projectID)
	require.NoError(t, err)
	sh := loaded.FindShot("seq_01_sh01")
	require.Equal(t, models.RenderStatusDone, sh.Render.Status)
	require.NotEmpty(t, sh.Render.ImageURL)
}

func TestValidateCatchesInvariantViolations(t *testing.T) {
	s, _ := newTestStore(t)
	st := createTestProject(t, s)

	st.AudioDNA = &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 60}}
	st.Storyboard.Sequences = []models.Sequence{{
		SequenceID:    "seq_01",
		Start:         0,
		End:           70, // past audio end
		StructureType: "drop",
		Energy:        1.4,
		Cast:          []string{"ghost_1"},
	}}
	st.Storyboard.Shots = []models.Shot{{
		ShotID:        "seq_99_sh01",
		SequenceID:    "seq_99", // unknown sequence
		Start:         0,
		End:           5,
		StructureType: models.StructureVerse,
		Energy:        0.5,
	}}

	errs := s.Validate(st)
	require.NotEmpty(t, errs)

	var msgs string
	for _, e := range errs {
		msgs += e.Error() + "\n"
	}
	require.Contains(t, msgs, "exceeds audio duration")
	require.Contains(t, msgs, "invalid structure_type")
	require.Contains(t, msgs, "energy")
	require.Contains(t, msgs, "unknown cast_id")
	require.Contains(t, msgs, "unknown sequence")
}

func TestValidateShotCoverage(t *testing.T) {
	s, _ := newTestStore(t)
	st := createTestProject(t, s)

	st.AudioDNA = &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 20}}
	st.Storyboard.Sequences = []models.Sequence{{
		SequenceID: "seq_01", Start: 0, End: 20, StructureType: models.StructureVerse, Energy: 0.5,
	}}
	st.Storyboard.Shots = []models.Shot{
		{ShotID: "a", SequenceID: "seq_01", Start: 0, End: 8, StructureType: models.StructureVerse},
		{ShotID: "b", SequenceID: "seq_01", Start: 9, End: 20, StructureType: models.StructureVerse}, // 1s gap
	}

	errs := s.Validate(st)
	require.NotEmpty(t, errs)

	// Close the gap; the document becomes valid.
	st.Storyboard.Shots[1].Start = 8
	require.Empty(t, s.Validate(st))
}

func TestValidateDoneShotNeedsFile(t *testing.T) {
	s, _ := newTestStore(t)
	st := createTestProject(t, s)

	st.AudioDNA = &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 10}}
	st.Storyboard.Sequences = []models.Sequence{{
		SequenceID: "seq_01", Start: 0, End: 10, StructureType: models.StructureVerse,
	}}
	st.Storyboard.Shots = []models.Shot{{
		ShotID: "seq_01_sh01", SequenceID: "seq_01", Start: 0, End: 10,
		StructureType: models.StructureVerse,
		Render: models.Render{
			Status:   models.RenderStatusDone,
			ImageURL: "/files/projects/missing/render.png",
		},
	}}

	errs := s.Validate(st)
	require.NotEmpty(t, errs)
}

func TestLegacyStubPreferredWhenNewer(t *testing.T) {
	s, pm := newTestStore(t)
	st := createTestProject(t, s)
	projectID := st.Project.ID

	// Write a legacy stub with a newer updated_at and a different title.
	stub := *st
	stub.Project.Title = "Newer Title"
	stub.Project.UpdatedAt = "2099-01-01T00:00:00Z"
	data, err := json.Marshal(&stub)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(pm.ProjectsDir(), projectID+".json"), data, 0o644))

	loaded, err := s.Load(context.Background(), projectID)
	require.NoError(t, err)
	require.Equal(t, "Newer Title", loaded.Project.Title)

	// Saving consolidates back to one canonical document.
	require.NoError(t, s.Save(loaded, false, false))
	require.NoFileExists(t, filepath.Join(pm.ProjectsDir(), projectID+".json"))
}
