// Package audio turns an uploaded track into AudioDNA: measured duration and
// tempo, externally analyzed structure/mood/lyrics, and the derived beat grid
// the storyboard planner works against.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
)

const analysisPrompt = `Analyze this song. Return a single JSON object with keys:
style (string), mood (string), bpm (number), delivery (string),
story (string, the narrative arc of the song),
sections (array of {type, start, end} using intro/verse/prechorus/chorus/bridge/breakdown/outro/instrumental),
dynamics (array of {start, end, energy} with energy in 0..1),
lyrics (array of {text, start}),
instruments (array of strings).
Times are seconds from track start. Return JSON only.`

// Prober measures duration and decodes PCM; satisfied by services.FFmpegMuxer.
type Prober interface {
	AudioDuration(ctx context.Context, path string) (float64, error)
	DecodePCM(ctx context.Context, path string, sampleRate int, maxSeconds float64) ([]float64, error)
}

type Analyzer struct {
	fal    *services.FalService
	prober Prober
	debug  *debuglog.Logger
}

func NewAnalyzer(fal *services.FalService, prober Prober, debug *debuglog.Logger) *Analyzer {
	return &Analyzer{fal: fal, prober: prober, debug: debug}
}

// Analyze runs the full pipeline over a local audio file already uploaded to
// uploadURL and writes the resulting AudioDNA onto state. Local probes that
// fail are skipped silently; a failed external call propagates.
func (a *Analyzer) Analyze(ctx context.Context, st *models.State, localPath, uploadURL, prompt string) error {
	dna := &models.AudioDNA{}
	dna.Meta.UploadURL = uploadURL

	// 1. Local duration probe: ffprobe first, PCM decode as the fallback.
	if dur, err := a.prober.AudioDuration(ctx, localPath); err == nil && dur > 0 {
		dna.Meta.DurationSec = dur
		dna.Meta.DurationSource = "ffprobe"
	} else if samples, err := a.prober.DecodePCM(ctx, localPath, bpmSampleRate, 0); err == nil && len(samples) > 0 {
		dna.Meta.DurationSec = float64(len(samples)) / float64(bpmSampleRate)
		dna.Meta.DurationSource = "pcm"
	} else {
		log.Printf("[Audio] All local duration probes failed for %s", localPath)
	}

	// 2. Local BPM detection.
	if samples, err := a.prober.DecodePCM(ctx, localPath, bpmSampleRate, bpmMaxSeconds); err == nil {
		if bpm := DetectBPM(samples); bpm > 0 {
			dna.Meta.BPM = bpm
			dna.Meta.BPMSource = models.BPMSourceLocal
			log.Printf("[Audio] Local BPM estimate: %.1f", bpm)
		}
	} else {
		log.Printf("[Audio] PCM decode for BPM failed: %v", err)
	}

	// 3. Optional Whisper transcription.
	if st.Project.UseWhisper {
		if text, err := a.fal.Transcribe(ctx, uploadURL, ""); err != nil {
			log.Printf("[Audio] Whisper transcription failed: %v", err)
		} else if text != "" {
			dna.Lyrics = splitLyrics(text)
			dna.LyricSource = "whisper"
		}
	}

	// 4. External audio understanding. This is the one step that propagates
	// failure — without it there is no structure to plan against.
	if prompt == "" {
		prompt = analysisPrompt
	}
	raw, err := a.fal.UnderstandAudio(ctx, uploadURL, prompt)
	a.debug.Write(st, debuglog.Entry{
		Kind:    "audio",
		Label:   "audio_understanding",
		Request: map[string]string{"audio_url": uploadURL, "prompt": prompt},
		Response: raw,
		Error:   errString(err),
	})
	if err != nil {
		return fmt.Errorf("audio understanding failed: %w", err)
	}

	// 5. Normalize the external result into the DNA shape.
	external, err := parseAnalysis(raw)
	if err != nil {
		return fmt.Errorf("audio understanding returned unusable JSON: %w", err)
	}
	mergeExternal(dna, external)

	// 6. Local values win; external BPM is kept for reference.
	if dna.Meta.BPM == 0 && external.BPM > 0 {
		dna.Meta.BPM = external.BPM
		dna.Meta.BPMSource = models.BPMSourceFal
	}
	if external.BPM > 0 {
		dna.Meta.BPMFal = external.BPM
	}
	if dna.Meta.BPM == 0 {
		dna.Meta.BPM = DefaultBPM
		dna.Meta.BPMSource = models.BPMSourceDefault
		log.Printf("[Audio] No BPM detected, defaulting to %d", DefaultBPM)
	}

	// 7. Beat grid.
	dna.BeatGrid = BuildBeatGrid(dna.Meta.BPM, dna.Meta.DurationSec)

	st.AudioDNA = dna
	return nil
}

// UpdateBPM applies a manual tempo override and rebuilds the beat grid.
func UpdateBPM(st *models.State, newBPM float64) error {
	if st.AudioDNA == nil {
		return fmt.Errorf("project has no audio")
	}
	st.AudioDNA.Meta.BPM = ClampBPM(newBPM)
	st.AudioDNA.Meta.BPMSource = models.BPMSourceManual
	st.AudioDNA.BeatGrid = BuildBeatGrid(st.AudioDNA.Meta.BPM, st.AudioDNA.Meta.DurationSec)
	return nil
}

// UpdateLyrics replaces the lyrics wholesale and marks them manual.
func UpdateLyrics(st *models.State, text string) error {
	if st.AudioDNA == nil {
		return fmt.Errorf("project has no audio")
	}
	st.AudioDNA.Lyrics = splitLyrics(text)
	st.AudioDNA.LyricSource = "manual"
	return nil
}

// ---------------------------------------------------------------------------
// External analysis parsing
// ---------------------------------------------------------------------------

// externalAnalysis mirrors what the audio-understanding model returns. Lyrics
// arrive either as plain strings or {text, start} objects.
type externalAnalysis struct {
	Style       string                 `json:"style"`
	Mood        string                 `json:"mood"`
	BPM         float64                `json:"bpm"`
	Delivery    string                 `json:"delivery"`
	Story       string                 `json:"story"`
	Sections    []models.Section       `json:"sections"`
	Dynamics    []models.DynamicsPoint `json:"dynamics"`
	Lyrics      []lyricEntry           `json:"lyrics"`
	Instruments []string               `json:"instruments"`
}

type lyricEntry struct {
	Text  string
	Start *float64
}

func (l *lyricEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.Text = s
		return nil
	}
	var obj struct {
		Text  string   `json:"text"`
		Line  string   `json:"line"`
		Start *float64 `json:"start"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Text = obj.Text
	if l.Text == "" {
		l.Text = obj.Line
	}
	l.Start = obj.Start
	return nil
}

// parseAnalysis strips markdown fences and unmarshals the analyzer output.
func parseAnalysis(raw string) (*externalAnalysis, error) {
	cleaned := services.StripJSONFences(raw)
	var out externalAnalysis
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func mergeExternal(dna *models.AudioDNA, ext *externalAnalysis) {
	dna.Style = ext.Style
	dna.Mood = ext.Mood
	dna.Delivery = ext.Delivery
	dna.Story = ext.Story
	dna.Sections = ext.Sections
	dna.Instruments = ext.Instruments

	for _, d := range ext.Dynamics {
		d.Energy = clamp01(d.Energy)
		dna.Dynamics = append(dna.Dynamics, d)
	}

	// Whisper lyrics (already set) beat the analyzer's.
	if len(dna.Lyrics) == 0 {
		for _, l := range ext.Lyrics {
			if strings.TrimSpace(l.Text) == "" {
				continue
			}
			dna.Lyrics = append(dna.Lyrics, models.LyricLine{Text: l.Text, Start: l.Start})
		}
		if len(dna.Lyrics) > 0 {
			dna.LyricSource = "fal"
		}
	}
}

func splitLyrics(text string) []models.LyricLine {
	var out []models.LyricLine
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, models.LyricLine{Text: line})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
