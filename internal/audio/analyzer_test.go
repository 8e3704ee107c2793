package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func TestBuildBeatGrid(t *testing.T) {
	grid := BuildBeatGrid(120, 10)

	// 120 BPM = 2 beats/sec → 20 beats in 10s, 5 bars in 4/4.
	require.Equal(t, 20, grid.TotalBeats)
	require.Equal(t, 5, grid.TotalBars)
	require.Equal(t, grid.Bars, grid.Downbeats)
	require.Equal(t, 0.0, grid.Beats[0])
	require.InDelta(t, 0.5, grid.Beats[1], 0.001)
	require.InDelta(t, 2.0, grid.Bars[1], 0.001)
}

func TestBuildBeatGridDegenerate(t *testing.T) {
	require.Empty(t, BuildBeatGrid(0, 10).Beats)
	require.Empty(t, BuildBeatGrid(120, 0).Beats)
}

func TestClampBPM(t *testing.T) {
	require.Equal(t, 40.0, ClampBPM(12))
	require.Equal(t, 240.0, ClampBPM(999))
	require.Equal(t, 128.0, ClampBPM(128))
}

func TestUpdateBPM(t *testing.T) {
	st := &models.State{
		AudioDNA: &models.AudioDNA{
			Meta: models.AudioMeta{DurationSec: 60, BPM: 120, BPMSource: models.BPMSourceLocal},
		},
	}
	require.NoError(t, UpdateBPM(st, 90))
	require.Equal(t, 90.0, st.AudioDNA.Meta.BPM)
	require.Equal(t, models.BPMSourceManual, st.AudioDNA.Meta.BPMSource)
	require.Equal(t, 90, st.AudioDNA.BeatGrid.TotalBeats) // 1.5 beats/sec * 60s

	// Out-of-range overrides clamp.
	require.NoError(t, UpdateBPM(st, 1000))
	require.Equal(t, 240.0, st.AudioDNA.Meta.BPM)
}

func TestUpdateBPMWithoutAudio(t *testing.T) {
	require.Error(t, UpdateBPM(&models.State{}, 120))
}

func TestUpdateLyrics(t *testing.T) {
	st := &models.State{AudioDNA: &models.AudioDNA{}}
	require.NoError(t, UpdateLyrics(st, "line one\n\n  line two  \n"))
	require.Len(t, st.AudioDNA.Lyrics, 2)
	require.Equal(t, "line one", st.AudioDNA.Lyrics[0].Text)
	require.Equal(t, "line two", st.AudioDNA.Lyrics[1].Text)
	require.Equal(t, "manual", st.AudioDNA.LyricSource)
}

func TestParseAnalysisStripsFences(t *testing.T) {
	raw := "```json\n{\"style\":\"synthwave\",\"mood\":\"wistful\",\"bpm\":104,\"lyrics\":[\"first line\",{\"text\":\"second\",\"start\":12.5}],\"dynamics\":[{\"start\":0,\"end\":10,\"energy\":1.7}]}\n```"
	parsed, err := parseAnalysis(raw)
	require.NoError(t, err)
	require.Equal(t, "synthwave", parsed.Style)
	require.Equal(t, 104.0, parsed.BPM)
	require.Len(t, parsed.Lyrics, 2)
	require.Equal(t, "first line", parsed.Lyrics[0].Text)
	require.Nil(t, parsed.Lyrics[0].Start)
	require.NotNil(t, parsed.Lyrics[1].Start)
	require.Equal(t, 12.5, *parsed.Lyrics[1].Start)
}

func TestMergeExternalClampsEnergy(t *testing.T) {
	dna := &models.AudioDNA{}
	mergeExternal(dna, &externalAnalysis{
		Dynamics: []models.DynamicsPoint{{Start: 0, End: 5, Energy: 1.7}, {Start: 5, End: 10, Energy: -0.2}},
		Lyrics:   []lyricEntry{{Text: "hello"}, {Text: "   "}},
	})
	require.Equal(t, 1.0, dna.Dynamics[0].Energy)
	require.Equal(t, 0.0, dna.Dynamics[1].Energy)
	require.Len(t, dna.Lyrics, 1) // blank lines dropped
	require.Equal(t, "fal", dna.LyricSource)
}

func TestDetectBPMOnSyntheticClicks(t *testing.T) {
	// 120 BPM click track: an impulse burst every 0.5s over 30s.
	const seconds = 30
	samples := make([]float64, bpmSampleRate*seconds)
	interval := bpmSampleRate / 2
	for i := 0; i < len(samples); i += interval {
		for j := 0; j < 400 && i+j < len(samples); j++ {
			samples[i+j] = math.Sin(float64(j) * 0.9)
		}
	}

	bpm := DetectBPM(samples)
	require.NotZero(t, bpm)
	// Accept the tempo or an octave of it, with slack for hop quantization;
	// the grid only needs a stable pulse.
	matchesOctave := math.Abs(bpm-120) < 6 || math.Abs(bpm-60) < 3 || math.Abs(bpm-240) < 12
	require.True(t, matchesOctave, "detected %.1f, want 120 (or octave)", bpm)
}

func TestDetectBPMTooShort(t *testing.T) {
	require.Zero(t, DetectBPM(make([]float64, 100)))
}
