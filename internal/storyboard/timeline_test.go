package storyboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func TestTargetCounts(t *testing.T) {
	cases := []struct {
		duration float64
		seqs     int
		shots    int
	}{
		{45, 3, 18},
		{59.9, 3, 18},
		{60, 5, 30},
		{119, 5, 30},
		{120, 7, 42},
		{179, 7, 42},
		{180, 9, 54},
		{239, 9, 54},
		{240, 12, 72},
		{300, 12, 72}, // capped at 12 sequences
		{1000, 12, 72},
	}
	for _, c := range cases {
		seqs, shots := TargetCounts(c.duration)
		require.Equal(t, c.seqs, seqs, "duration %.1f", c.duration)
		require.Equal(t, c.shots, shots, "duration %.1f", c.duration)
	}
}

func TestNormalizeStructureType(t *testing.T) {
	cases := map[string]models.StructureType{
		"chorus":     models.StructureChorus,
		"CHORUS":     models.StructureChorus,
		" Verse ":    models.StructureVerse,
		"pre-chorus": models.StructurePrechorus,
		"hook":       models.StructureChorus,
		"drop":       models.StructureBreakdown,
		"solo":       models.StructureInstrumental,
		"whatever":   models.StructureVerse,
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeStructureType(in), "input %q", in)
	}
}

func TestCapSequencesClipsAndDrops(t *testing.T) {
	seqs := []models.Sequence{
		{SequenceID: "seq_01", Start: 0, End: 90},
		{SequenceID: "seq_02", Start: 90, End: 190},  // clipped to 180
		{SequenceID: "seq_03", Start: 185, End: 200}, // starts past end, dropped
	}
	capped := CapSequences(seqs, 180)
	require.Len(t, capped, 2)
	require.Equal(t, 180.0, capped[1].End)
	require.Equal(t, "seq_02", capped[1].SequenceID)
}

func timelineState(shots []models.Shot) *models.State {
	return &models.State{
		AudioDNA: &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 180}},
		Storyboard: models.Storyboard{
			Sequences: []models.Sequence{{
				SequenceID: "seq_01", Start: 0, End: 20,
				StructureType: models.StructureVerse, Energy: 0.5,
			}},
			Shots: shots,
		},
	}
}

func TestTightenClosesSmallGaps(t *testing.T) {
	st := timelineState([]models.Shot{
		{ShotID: "a", SequenceID: "seq_01", Start: 0, End: 4.96},
		{ShotID: "b", SequenceID: "seq_01", Start: 5.0, End: 10}, // 0.04s gap
		{ShotID: "c", SequenceID: "seq_01", Start: 10.5, End: 20}, // 0.5s gap, left alone
	})

	adjusted := Tighten(st)
	require.Equal(t, 1, adjusted)
	require.Equal(t, 5.0, st.Storyboard.Shots[0].End)
	require.Equal(t, 10.5, st.Storyboard.Shots[2].Start)
}

func TestTightenRemovesOverlap(t *testing.T) {
	st := timelineState([]models.Shot{
		{ShotID: "a", SequenceID: "seq_01", Start: 0, End: 6},
		{ShotID: "b", SequenceID: "seq_01", Start: 5, End: 10}, // overlaps a
	})

	Tighten(st)
	require.Equal(t, 6.0, st.Storyboard.Shots[1].Start)
}

func TestTightenIdempotent(t *testing.T) {
	st := timelineState([]models.Shot{
		{ShotID: "a", SequenceID: "seq_01", Start: 0, End: 4.97},
		{ShotID: "b", SequenceID: "seq_01", Start: 5, End: 12},
		{ShotID: "c", SequenceID: "seq_01", Start: 11, End: 20},
	})

	Tighten(st)
	first := append([]models.Shot(nil), st.Storyboard.Shots...)
	adjusted := Tighten(st)
	require.Zero(t, adjusted)
	require.Equal(t, first, st.Storyboard.Shots)
}

func TestRepairDropsAndClips(t *testing.T) {
	st := &models.State{
		AudioDNA: &models.AudioDNA{Meta: models.AudioMeta{DurationSec: 180}},
		Storyboard: models.Storyboard{
			Sequences: []models.Sequence{
				{SequenceID: "seq_01", Start: 0, End: 90, StructureType: models.StructureVerse},
				{SequenceID: "seq_02", Start: 90, End: 190, StructureType: models.StructureChorus},
				{SequenceID: "seq_03", Start: 190, End: 220, StructureType: models.StructureOutro},
			},
			Shots: []models.Shot{
				{ShotID: "s1", SequenceID: "seq_01", Start: 0, End: 90},
				{ShotID: "s2", SequenceID: "seq_02", Start: 90, End: 179},
				{ShotID: "s3", SequenceID: "seq_02", Start: 179, End: 190}, // clipped
				{ShotID: "s4", SequenceID: "seq_02", Start: 185, End: 190}, // past end, dropped
				{ShotID: "s5", SequenceID: "seq_03", Start: 190, End: 220}, // sequence dropped
			},
		},
	}

	report := Repair(st)
	require.Equal(t, 1, report.SequencesRemoved)
	require.Equal(t, 1, report.SequencesCapped)
	require.Equal(t, 2, report.ShotsRemoved)
	require.Equal(t, 1, report.ShotsCapped)

	// The clipped sequence is kept with end at the audio bound.
	require.Len(t, st.Storyboard.Sequences, 2)
	require.Equal(t, 180.0, st.Storyboard.Sequences[1].End)
	require.Len(t, st.Storyboard.Shots, 3)
	require.Equal(t, 180.0, st.Storyboard.Shots[2].End)

	// Idempotent: a second repair is a no-op.
	require.Equal(t, RepairReport{}, Repair(st))
}

func TestRepairWithoutAudioIsNoop(t *testing.T) {
	st := &models.State{Storyboard: models.Storyboard{
		Sequences: []models.Sequence{{SequenceID: "seq_01", Start: 0, End: 500}},
	}}
	require.Equal(t, RepairReport{}, Repair(st))
	require.Len(t, st.Storyboard.Sequences, 1)
}

func TestIDFormats(t *testing.T) {
	require.Equal(t, "seq_01", SequenceID(0))
	require.Equal(t, "seq_12", SequenceID(11))
	require.Equal(t, "seq_03_sh05", ShotID("seq_03", 4))
}

func TestCastResolver(t *testing.T) {
	resolve := castResolver([]models.CastMember{
		{CastID: "lead_1", Name: "Ava Moreno"},
		{CastID: "extra_1", Name: "Busker"},
	})

	id, ok := resolve("lead_1")
	require.True(t, ok)
	require.Equal(t, "lead_1", id)

	id, ok = resolve("ava moreno")
	require.True(t, ok)
	require.Equal(t, "lead_1", id)

	id, ok = resolve("  Busker ")
	require.True(t, ok)
	require.Equal(t, "extra_1", id)

	_, ok = resolve("nobody")
	require.False(t, ok)
}
