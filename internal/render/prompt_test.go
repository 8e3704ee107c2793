package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func promptTestState() *models.State {
	return &models.State{
		Project: models.Project{
			ID:          "p1",
			StylePreset: "cinematic",
			Aspect:      models.AspectHorizontal,
		},
		Cast: []models.CastMember{
			{CastID: "lead_1", Name: "Ava", Role: models.RoleLead, Impact: 0.9, PromptExtra: "black suit"},
			{CastID: "extra_1", Name: "Busker", Role: models.RoleExtra, Impact: 0.3, PromptExtra: "worn denim jacket"},
		},
		CastMatrix: models.CastMatrix{
			CharacterRefs: map[string]models.CharacterRefs{
				"lead_1": {RefA: "/files/projects/p/renders/cast_lead_1_ref_a.png", RefB: "/files/projects/p/renders/cast_lead_1_ref_b.png"},
				"extra_1": {RefA: "/files/projects/p/renders/cast_extra_1_ref_a.png"},
			},
			Scenes: []models.Scene{{
				SceneID:     "scene_01",
				SequenceID:  "seq_01",
				DecorRefs:   []string{"/files/projects/p/renders/scene_scene_01_decor.png"},
				WardrobeRef: "/files/projects/p/renders/scene_scene_01_wardrobe.png",
			}},
		},
		Storyboard: models.Storyboard{
			Sequences: []models.Sequence{{SequenceID: "seq_01", Start: 0, End: 10}},
		},
	}
}

func TestWardrobeBeatsPromptExtra(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{
		ShotID:     "seq_01_sh01",
		SequenceID: "seq_01",
		Cast:       []string{"lead_1"},
		Wardrobe:   map[string]string{"lead_1": "red coat"},
		Energy:     0.5,
		PromptBase: "walking through rain",
	}

	prompt := BuildShotPrompt(st, shot)
	require.Contains(t, prompt, "red coat")
	require.NotContains(t, prompt, "black suit")
	require.Contains(t, prompt, "Ava: red coat")
}

func TestPromptExtraFallback(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{
		ShotID:     "seq_01_sh01",
		SequenceID: "seq_01",
		Cast:       []string{"lead_1"},
		Energy:     0.5,
	}

	prompt := BuildShotPrompt(st, shot)
	require.Contains(t, prompt, "black suit")
}

func TestPromptNegativeSuffixAndEnergy(t *testing.T) {
	st := promptTestState()

	quiet := BuildShotPrompt(st, &models.Shot{SequenceID: "seq_01", Energy: 0.2})
	require.Contains(t, quiet, "quiet, slow")
	require.True(t, strings.HasSuffix(quiet, negativeSuffix))

	medium := BuildShotPrompt(st, &models.Shot{SequenceID: "seq_01", Energy: 0.5})
	require.Contains(t, medium, "steady, medium")

	intense := BuildShotPrompt(st, &models.Shot{SequenceID: "seq_01", Energy: 0.9})
	require.Contains(t, intense, "high intensity")
}

func TestWardrobeCapAtTwoCast(t *testing.T) {
	st := promptTestState()
	st.Cast = append(st.Cast, models.CastMember{
		CastID: "supporting_1", Name: "Jo", Role: models.RoleSupporting, PromptExtra: "green scarf",
	})
	shot := &models.Shot{
		SequenceID: "seq_01",
		Cast:       []string{"lead_1", "extra_1", "supporting_1"},
		Wardrobe: map[string]string{
			"lead_1":       "red coat",
			"extra_1":      "leather vest",
			"supporting_1": "green scarf outfit",
		},
	}

	prompt := BuildShotPrompt(st, shot)
	require.Contains(t, prompt, "red coat")
	require.Contains(t, prompt, "leather vest")
	require.NotContains(t, prompt, "green scarf")
}

func TestCloseupSelectsRefB(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{
		SequenceID:     "seq_01",
		Cast:           []string{"lead_1"},
		CameraLanguage: "tight close-up on hands",
	}

	refs := SelectShotRefs(st, shot)
	require.Contains(t, refs, "/files/projects/p/renders/cast_lead_1_ref_b.png")
	require.NotContains(t, refs, "/files/projects/p/renders/cast_lead_1_ref_a.png")
}

func TestCloseupFallsBackToRefA(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{
		SequenceID:     "seq_01",
		Cast:           []string{"extra_1"}, // has no ref_b
		CameraLanguage: "portrait framing",
	}

	refs := SelectShotRefs(st, shot)
	require.Contains(t, refs, "/files/projects/p/renders/cast_extra_1_ref_a.png")
}

func TestWideShotSelectsRefA(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{
		SequenceID:     "seq_01",
		Cast:           []string{"lead_1"},
		CameraLanguage: "wide tracking shot",
	}

	refs := SelectShotRefs(st, shot)
	require.Contains(t, refs, "/files/projects/p/renders/cast_lead_1_ref_a.png")
}

func TestSceneRefsIncluded(t *testing.T) {
	st := promptTestState()
	shot := &models.Shot{SequenceID: "seq_01", Cast: []string{"lead_1"}}

	refs := SelectShotRefs(st, shot)
	require.Contains(t, refs, "/files/projects/p/renders/scene_scene_01_decor.png")
	require.Contains(t, refs, "/files/projects/p/renders/scene_scene_01_wardrobe.png")
}

func TestStyleLockExcludedFromShotRefs(t *testing.T) {
	st := promptTestState()
	st.Project.StyleLocked = true
	st.Project.StyleLockImage = "/files/projects/p/renders/style_anchor.png"

	shot := &models.Shot{SequenceID: "seq_01", Cast: []string{"lead_1"}}
	refs := SelectShotRefs(st, shot)
	require.NotContains(t, refs, st.Project.StyleLockImage)
}

func TestIsCloseup(t *testing.T) {
	for _, s := range []string{"Close-Up on face", "extreme closeup", "portrait", "head shot", "eyes in shadow"} {
		require.True(t, isCloseup(s), s)
	}
	for _, s := range []string{"wide establishing", "dolly in", "crane shot"} {
		require.False(t, isCloseup(s), s)
	}
}
