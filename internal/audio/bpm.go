package audio

import (
	"math"
)

// Local tempo detection: onset-energy autocorrelation over mono PCM.
// The decoded signal is reduced to an onset-strength envelope (positive
// energy differences between short hops), then scanned for the inter-onset
// lag whose autocorrelation is strongest within the plausible BPM range.

const (
	bpmSampleRate = 11025
	bpmHopSize    = 256             // ~23ms per hop at 11025 Hz
	bpmMaxSeconds = 90.0            // analyzing more adds nothing but time
	bpmLow        = 70.0            // search range; octave errors are folded in
	bpmHigh       = 180.0
)

// DetectBPM estimates the track tempo from mono PCM at bpmSampleRate.
// Returns 0 when the signal is too short or has no usable periodicity.
func DetectBPM(samples []float64) float64 {
	if len(samples) < bpmSampleRate*5 {
		return 0
	}

	envelope := onsetEnvelope(samples)
	if len(envelope) < 64 {
		return 0
	}

	hopsPerSec := float64(bpmSampleRate) / float64(bpmHopSize)
	minLag := int(hopsPerSec * 60.0 / bpmHigh)
	maxLag := int(hopsPerSec * 60.0 / bpmLow)
	if maxLag >= len(envelope) {
		maxLag = len(envelope) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		score := 0.0
		for i := 0; i+lag < len(envelope); i++ {
			score += envelope[i] * envelope[i+lag]
		}
		// Slight bias toward shorter lags so perfect ties resolve to the
		// faster tempo instead of its half-time alias.
		score *= 1.0 + 0.0005*float64(maxLag-lag)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 || bestScore == 0 {
		return 0
	}

	bpm := hopsPerSec * 60.0 / float64(bestLag)
	// Fold octave errors back into the search band.
	for bpm < bpmLow {
		bpm *= 2
	}
	for bpm > bpmHigh {
		bpm /= 2
	}
	return math.Round(bpm*10) / 10
}

// onsetEnvelope reduces PCM to per-hop onset strengths: the positive part of
// the energy difference between consecutive hops, mean-removed.
func onsetEnvelope(samples []float64) []float64 {
	hops := len(samples) / bpmHopSize
	if hops < 2 {
		return nil
	}
	energies := make([]float64, hops)
	for h := 0; h < hops; h++ {
		sum := 0.0
		for i := h * bpmHopSize; i < (h+1)*bpmHopSize; i++ {
			sum += samples[i] * samples[i]
		}
		energies[h] = math.Sqrt(sum / float64(bpmHopSize))
	}

	envelope := make([]float64, hops-1)
	mean := 0.0
	for h := 1; h < hops; h++ {
		d := energies[h] - energies[h-1]
		if d < 0 {
			d = 0
		}
		envelope[h-1] = d
		mean += d
	}
	mean /= float64(len(envelope))
	for i := range envelope {
		envelope[i] -= mean
		if envelope[i] < 0 {
			envelope[i] = 0
		}
	}
	return envelope
}
