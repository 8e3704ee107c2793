// Package storyboard derives the timeline: sequences that cover the audio
// exactly, shots that cover each sequence, and the repair/tighten operations
// that keep both true after model output or audio changes.
package storyboard

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bobarin/muvi/internal/models"
)

const (
	// tightenThreshold is the largest residual gap closed by Tighten.
	tightenThreshold = 0.06

	// maxSequences caps very long tracks.
	maxSequences = 12
)

// TargetCounts sizes the storyboard from the audio duration. The sequence
// count is a hard limit: BuildSequences truncates longer model output to it.
// targetShots is passed to the model as guidance only; the number of shots
// that expansion stores is not capped by it.
func TargetCounts(durationSec float64) (sequenceCount, targetShots int) {
	switch {
	case durationSec < 60:
		return 3, 18
	case durationSec < 120:
		return 5, 30
	case durationSec < 180:
		return 7, 42
	case durationSec < 240:
		return 9, 54
	default:
		n := int(durationSec / 20)
		if n > maxSequences {
			n = maxSequences
		}
		return n, n * 6
	}
}

// structureSynonyms folds common model spellings into the allowed set.
var structureSynonyms = map[string]models.StructureType{
	"pre-chorus":   models.StructurePrechorus,
	"pre chorus":   models.StructurePrechorus,
	"refrain":      models.StructureChorus,
	"hook":         models.StructureChorus,
	"drop":         models.StructureBreakdown,
	"break":        models.StructureBreakdown,
	"interlude":    models.StructureInstrumental,
	"solo":         models.StructureInstrumental,
	"intro/outro":  models.StructureIntro,
	"introduction": models.StructureIntro,
	"ending":       models.StructureOutro,
}

// NormalizeStructureType coerces arbitrary model output into the allowed set.
func NormalizeStructureType(raw string) models.StructureType {
	t := models.StructureType(strings.ToLower(strings.TrimSpace(raw)))
	if models.ValidStructureType(t) {
		return t
	}
	if mapped, ok := structureSynonyms[string(t)]; ok {
		return mapped
	}
	return models.StructureVerse
}

// Clamp01 bounds an energy value into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CapSequences enforces the audio bound on a sequence list: sequences
// starting at or past the duration are dropped, the last end is clipped.
func CapSequences(seqs []models.Sequence, durationSec float64) []models.Sequence {
	var out []models.Sequence
	for _, seq := range seqs {
		if seq.Start >= durationSec {
			continue
		}
		if seq.End > durationSec {
			seq.End = durationSec
		}
		if seq.End <= seq.Start {
			continue
		}
		out = append(out, seq)
	}
	return out
}

// Tighten closes sub-threshold gaps between adjacent shots of each sequence
// and removes overlaps by pushing the later shot's start forward. Idempotent.
func Tighten(st *models.State) int {
	adjusted := 0
	for _, seq := range st.Storyboard.Sequences {
		shots := st.ShotsForSequence(seq.SequenceID)
		if len(shots) < 2 {
			continue
		}
		sort.SliceStable(shots, func(i, j int) bool { return shots[i].Start < shots[j].Start })
		for i := 1; i < len(shots); i++ {
			prev, cur := shots[i-1], shots[i]
			if cur.Start < prev.End {
				cur.Start = prev.End
				if cur.End < cur.Start {
					cur.End = cur.Start
				}
				adjusted++
				continue
			}
			if gap := cur.Start - prev.End; gap > 0 && gap <= tightenThreshold {
				prev.End = cur.Start
				adjusted++
			}
		}
	}
	return adjusted
}

// RepairReport counts what a repair pass removed or capped.
type RepairReport struct {
	SequencesRemoved int `json:"sequences_removed"`
	SequencesCapped  int `json:"sequences_capped"`
	ShotsRemoved     int `json:"shots_removed"`
	ShotsCapped      int `json:"shots_capped"`
}

// Repair enforces the audio bound over the whole storyboard: out-of-range
// sequences are dropped, ends clipped, and shots follow their sequences.
// Idempotent — repairing an already-valid storyboard changes nothing.
func Repair(st *models.State) RepairReport {
	report := RepairReport{}
	duration := st.DurationSec()
	if duration <= 0 {
		return report
	}

	kept := make([]models.Sequence, 0, len(st.Storyboard.Sequences))
	liveSeqs := map[string]bool{}
	for _, seq := range st.Storyboard.Sequences {
		if seq.Start >= duration {
			report.SequencesRemoved++
			continue
		}
		if seq.End > duration {
			seq.End = duration
			report.SequencesCapped++
		}
		liveSeqs[seq.SequenceID] = true
		kept = append(kept, seq)
	}
	st.Storyboard.Sequences = kept

	keptShots := make([]models.Shot, 0, len(st.Storyboard.Shots))
	for _, sh := range st.Storyboard.Shots {
		if !liveSeqs[sh.SequenceID] || sh.Start >= duration {
			report.ShotsRemoved++
			continue
		}
		if sh.End > duration {
			sh.End = duration
			report.ShotsCapped++
		}
		keptShots = append(keptShots, sh)
	}
	st.Storyboard.Shots = keptShots
	return report
}

// SequenceID formats the canonical sequence identifier.
func SequenceID(index int) string {
	return fmt.Sprintf("seq_%02d", index+1)
}

// ShotID formats the canonical shot identifier within a sequence.
func ShotID(sequenceID string, index int) string {
	return fmt.Sprintf("%s_sh%02d", sequenceID, index+1)
}

// round2 trims float noise from model-produced timestamps.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
