package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func TestClampDuration(t *testing.T) {
	m := videoModels["veo31"] // range 4-8
	require.Equal(t, 4.0, m.ClampDuration(2.5))
	require.Equal(t, 8.0, m.ClampDuration(12))
	require.Equal(t, 6.0, m.ClampDuration(6))
}

func TestVideoModelFor(t *testing.T) {
	st := &models.State{Project: models.Project{VideoModelChoice: "kling"}}
	require.Equal(t, "kling", VideoModelFor(st, "").Key)
	require.Equal(t, "wan", VideoModelFor(st, "wan").Key)
	require.Equal(t, "kling", VideoModelFor(st, "unknown-model").Key)

	empty := &models.State{}
	require.Equal(t, defaultVideoModel, VideoModelFor(empty, "").Key)
}

func TestVeoPayloadDurationEnum(t *testing.T) {
	m := videoModels["veo31"]
	cases := map[float64]string{
		4:   "4s",
		5.5: "6s",
		7.2: "8s",
		8:   "8s",
	}
	for dur, want := range cases {
		p := m.Payload("motion", "https://x/img.png", dur, models.AspectHorizontal)
		require.Equal(t, want, p["duration"], "duration %.1f", dur)
	}
}

func TestWanPayloadDurationAndResolution(t *testing.T) {
	m := videoModels["wan"]

	p := m.Payload("motion", "https://x/img.png", 9, models.AspectHorizontal)
	require.Equal(t, "10", p["duration"])
	require.Equal(t, "1080p", p["resolution"])

	p = m.Payload("motion", "https://x/img.png", 5, models.AspectVertical)
	require.Equal(t, "5", p["duration"])
	require.Equal(t, "720p", p["resolution"])

	p = m.Payload("motion", "https://x/img.png", 15, models.AspectSquare)
	require.Equal(t, "15", p["duration"])
}

func TestLTXPayloadFrames(t *testing.T) {
	m := videoModels["ltx2"]
	p := m.Payload("motion", "https://x/img.png", 3.2, models.AspectHorizontal)
	require.Equal(t, 80, p["num_frames"]) // 25 fps * 3.2s
	require.Equal(t, 25, p["fps"])
}

func TestBuildMotionPrompt(t *testing.T) {
	shot := &models.Shot{
		CameraLanguage:   "slow dolly in",
		Energy:           0.8,
		Environment:      "rooftop at dusk",
		SymbolicElements: []string{"smoke", "neon sign", "pigeons"},
	}
	prompt := BuildMotionPrompt(shot)
	require.Contains(t, prompt, "slow dolly in")
	require.Contains(t, prompt, "dynamic motion")
	require.Contains(t, prompt, "rooftop at dusk")
	require.Contains(t, prompt, "smoke")
	require.Contains(t, prompt, "neon sign")
	require.NotContains(t, prompt, "pigeons") // only the first two symbols

	calm := BuildMotionPrompt(&models.Shot{CameraLanguage: "locked off", Energy: 0.2})
	require.Contains(t, calm, "subtle motion")
}

func TestBuildMotionPromptDefault(t *testing.T) {
	require.Equal(t, defaultMotionPrompt, BuildMotionPrompt(&models.Shot{}))
}

func TestMaxRefsPerFamily(t *testing.T) {
	require.Equal(t, 4, MaxRefsFor(models.ImageModelNanobanana))
	require.Equal(t, 10, MaxRefsFor(models.ImageModelSeedream45))
	require.Equal(t, 4, MaxRefsFor(models.ImageModelFlux2))
}

func TestEditPayloadShapes(t *testing.T) {
	refs := []string{"https://x/a.png", "https://x/b.png"}

	nano := editPayload(models.ImageModelNanobanana, models.AspectVertical, "p", refs).(map[string]interface{})
	require.Equal(t, "9:16", nano["aspect_ratio"])
	require.Equal(t, refs, nano["image_urls"])

	seed := editPayload(models.ImageModelSeedream45, models.AspectHorizontal, "p", refs).(map[string]interface{})
	size := seed["image_size"].(map[string]int)
	require.Equal(t, 1920, size["width"])
	require.Equal(t, 1080, size["height"])

	flux := editPayload(models.ImageModelFlux2, models.AspectSquare, "p", refs).(map[string]interface{})
	require.Equal(t, "square_hd", flux["image_size"])
	require.Equal(t, 28, flux["num_inference_steps"])
}
