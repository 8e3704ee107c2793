package audio

import "github.com/bobarin/muvi/internal/models"

// BPM bounds for manual overrides and detector sanity checks.
const (
	MinBPM = 40
	MaxBPM = 240

	// DefaultBPM anchors the beat grid when no detector produced a value.
	DefaultBPM = 120
)

// BuildBeatGrid derives beat, bar and downbeat times assuming 4/4 at bpm.
// Downbeats coincide with bar starts; both are kept because the planner
// prompts reference them separately.
func BuildBeatGrid(bpm, durationSec float64) *models.BeatGrid {
	if bpm <= 0 || durationSec <= 0 {
		return &models.BeatGrid{}
	}
	beatDur := 60.0 / bpm

	grid := &models.BeatGrid{}
	for t, i := 0.0, 0; t < durationSec; i++ {
		grid.Beats = append(grid.Beats, round3(t))
		if i%4 == 0 {
			grid.Bars = append(grid.Bars, round3(t))
			grid.Downbeats = append(grid.Downbeats, round3(t))
		}
		t = float64(i+1) * beatDur
	}
	grid.TotalBeats = len(grid.Beats)
	grid.TotalBars = len(grid.Bars)
	return grid
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

// ClampBPM bounds a manual BPM override to the supported range.
func ClampBPM(bpm float64) float64 {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}
