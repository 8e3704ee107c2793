// Package export assembles the final music video: rendered stills (or
// generated clips) concatenated against the source audio, with per-clip
// duration normalization so the cut stays on the storyboard timing.
package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
	"github.com/bobarin/muvi/internal/render"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/state"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
	defaultFPS    = 30

	// trimSlack is how much longer than target a generated clip must be
	// before trimming is worth it; anything closer gets used or retimed.
	trimSlack = 0.1
)

// Mode selects what the exporter assembles.
type Mode string

const (
	ModeStills  Mode = "stills"
	ModeImg2Vid Mode = "img2vid"
)

// Options control one export run.
type Options struct {
	Mode         Mode    `json:"mode"`
	FPS          int     `json:"fps"`
	Resolution   string  `json:"resolution"` // "1920x1080"
	FadeDuration float64 `json:"fade_duration"`
	VideoModel   string  `json:"video_model"` // img2vid only
}

// Result reports a finished export.
type Result struct {
	VideoURL         string   `json:"video_url"`
	ShotsExported    int      `json:"shots_exported"`
	DurationSec      float64  `json:"duration_sec"`
	SceneTransitions int      `json:"scene_transitions"`
	SkippedShots     []string `json:"skipped_shots,omitempty"`
	GenerationTime   float64  `json:"generation_time,omitempty"` // img2vid
	VideoModel       string   `json:"video_model,omitempty"`     // img2vid
}

type Exporter struct {
	store  *state.Store
	paths  *paths.Manager
	muxer  services.MediaMuxer
	orch   *render.Orchestrator
	status *StatusBoard
}

func NewExporter(store *state.Store, pm *paths.Manager, muxer services.MediaMuxer, orch *render.Orchestrator, status *StatusBoard) *Exporter {
	return &Exporter{store: store, paths: pm, muxer: muxer, orch: orch, status: status}
}

// Status returns the poll record for a project.
func (e *Exporter) Status(projectID string) Status {
	return e.status.Get(projectID)
}

// Export runs one export and publishes progress through the status board.
func (e *Exporter) Export(ctx context.Context, projectID string, opts Options) (*Result, error) {
	result, err := e.export(ctx, projectID, opts)
	if err != nil {
		e.status.Set(projectID, Status{Status: PhaseError, Message: shortError(err)})
		return nil, err
	}
	e.status.Set(projectID, Status{
		Status:  PhaseDone,
		Current: result.ShotsExported,
		Total:   result.ShotsExported,
		Message: result.VideoURL,
	})
	return result, nil
}

func (e *Exporter) export(ctx context.Context, projectID string, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeStills
	}
	if opts.FPS <= 0 {
		opts.FPS = defaultFPS
	}
	w, h := parseResolution(opts.Resolution)

	if err := e.muxer.Probe(ctx); err != nil {
		return nil, fmt.Errorf("media muxer unavailable: %w", err)
	}

	st, err := e.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// Audio is mandatory — the whole point is sync.
	if st.AudioDNA == nil || st.AudioDNA.Meta.AudioURL == "" {
		return nil, apperr.Validation("project has no audio to export against")
	}
	audioPath, err := e.paths.FromURL(st.AudioDNA.Meta.AudioURL, st)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, apperr.New(apperr.KindResourceMissing, "audio file missing: %s", audioPath)
	}

	// Shots with a render, in timeline order.
	var shots []*models.Shot
	for i := range st.Storyboard.Shots {
		sh := &st.Storyboard.Shots[i]
		if sh.Render.ImageURL != "" {
			shots = append(shots, sh)
		}
	}
	if len(shots) == 0 {
		return nil, apperr.Validation("no rendered shots to export")
	}
	sort.SliceStable(shots, func(i, j int) bool { return shots[i].Start < shots[j].Start })

	tempDir, err := e.paths.ProjectTempDir(st)
	if err != nil {
		return nil, err
	}
	videoDir, err := e.paths.VideoDir(st)
	if err != nil {
		return nil, err
	}

	e.status.Progress(projectID, 0, len(shots), "preparing clips")

	started := time.Now()
	var result *Result
	switch opts.Mode {
	case ModeImg2Vid:
		result, err = e.exportImg2Vid(ctx, st, shots, audioPath, tempDir, videoDir, opts)
		if result != nil {
			result.GenerationTime = time.Since(started).Seconds()
		}
	default:
		result, err = e.exportStills(ctx, st, shots, audioPath, tempDir, videoDir, w, h, opts.FPS)
	}
	if err != nil {
		return nil, err
	}

	// Count transitions between distinct sequences in the final cut.
	transitions := 0
	lastSeq := ""
	for _, sh := range shots {
		if lastSeq != "" && sh.SequenceID != lastSeq {
			transitions++
		}
		lastSeq = sh.SequenceID
	}
	result.SceneTransitions = transitions

	if dur, err := e.muxer.VideoDuration(ctx, mustFromURL(e.paths, result.VideoURL, st)); err == nil {
		result.DurationSec = dur
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Stills mode
// ---------------------------------------------------------------------------

func (e *Exporter) exportStills(ctx context.Context, st *models.State, shots []*models.Shot, audioPath, tempDir, videoDir string, w, h, fps int) (*Result, error) {
	var clips []string
	var skipped []string

	for i, sh := range shots {
		e.status.Progress(st.Project.ID, i+1, len(shots), "building clip "+sh.ShotID)

		duration := sh.Duration()
		if duration <= 0 {
			skipped = append(skipped, sh.ShotID)
			continue
		}
		imagePath, err := e.paths.FromURL(sh.Render.ImageURL, st)
		if err != nil {
			skipped = append(skipped, sh.ShotID)
			continue
		}
		if _, err := os.Stat(imagePath); err != nil {
			log.Printf("[Export] Image missing for %s, skipping", sh.ShotID)
			skipped = append(skipped, sh.ShotID)
			continue
		}

		clipPath := filepath.Join(tempDir, fmt.Sprintf("clip_%03d_%s.mp4", i, sh.ShotID))
		if err := e.muxer.ImageToClip(ctx, imagePath, duration, w, h, fps, clipPath); err != nil {
			return nil, fmt.Errorf("clip build failed for %s: %w", sh.ShotID, err)
		}
		clips = append(clips, clipPath)
	}
	if len(clips) == 0 {
		return nil, apperr.Validation("every shot was skipped; nothing to export")
	}

	e.status.Progress(st.Project.ID, len(shots), len(shots), "concatenating")
	outputPath := filepath.Join(videoDir, paths.SanitizeFilename(st.Project.Title, 60)+"_export.mp4")
	if err := e.muxer.Concat(ctx, clips, audioPath, outputPath); err != nil {
		return nil, fmt.Errorf("concatenation failed: %w", err)
	}
	cleanupClips(clips)

	return &Result{
		VideoURL:      e.paths.ToURL(outputPath),
		ShotsExported: len(clips),
		SkippedShots:  skipped,
	}, nil
}

// ---------------------------------------------------------------------------
// Img2vid mode
// ---------------------------------------------------------------------------

func (e *Exporter) exportImg2Vid(ctx context.Context, st *models.State, shots []*models.Shot, audioPath, tempDir, videoDir string, opts Options) (*Result, error) {
	var clips []string
	var skipped []string
	projectID := st.Project.ID

	for i, sh := range shots {
		e.status.Progress(projectID, i+1, len(shots), "clip "+sh.ShotID)

		video := sh.Render.Video
		if video == nil {
			// Generate the missing clip before assembling.
			e.status.Progress(projectID, i+1, len(shots), "generating video for "+sh.ShotID)
			generated, err := e.orch.GenerateShotVideo(ctx, projectID, sh.ShotID, opts.VideoModel)
			if err != nil {
				log.Printf("[Export] Video generation failed for %s, skipping: %v", sh.ShotID, err)
				skipped = append(skipped, sh.ShotID)
				continue
			}
			video = generated
		}

		clipPath := video.LocalPath
		if clipPath == "" || !fileExists(clipPath) {
			resolved, err := e.paths.FromURL(video.VideoURL, st)
			if err != nil || !fileExists(resolved) {
				skipped = append(skipped, sh.ShotID)
				continue
			}
			clipPath = resolved
		}

		adjusted, err := e.normalizeClipDuration(ctx, sh, video, clipPath, tempDir, i)
		if err != nil {
			return nil, err
		}
		clips = append(clips, adjusted)
	}
	if len(clips) == 0 {
		return nil, apperr.Validation("every shot was skipped; nothing to export")
	}

	e.status.Progress(projectID, len(shots), len(shots), "concatenating")
	outputPath := filepath.Join(videoDir, paths.SanitizeFilename(st.Project.Title, 60)+"_img2vid_export.mp4")
	if err := e.muxer.Concat(ctx, clips, audioPath, outputPath); err != nil {
		return nil, fmt.Errorf("concatenation failed: %w", err)
	}
	cleanupClips(clips)

	model := opts.VideoModel
	if model == "" {
		model = st.Project.VideoModelChoice
	}
	return &Result{
		VideoURL:      e.paths.ToURL(outputPath),
		ShotsExported: len(clips),
		SkippedShots:  skipped,
		VideoModel:    model,
	}, nil
}

// normalizeClipDuration fits a generated clip to the storyboard timing:
// trim (stream copy, preserves natural motion) when the clip overruns by more
// than the slack; speed-adjust when it underruns or the trim fails; as-is
// when it already matches.
func (e *Exporter) normalizeClipDuration(ctx context.Context, sh *models.Shot, video *models.ShotVideo, clipPath, tempDir string, index int) (string, error) {
	target := video.TargetDuration
	if target <= 0 {
		target = sh.Duration()
	}
	actual := video.Duration
	if probed, err := e.muxer.VideoDuration(ctx, clipPath); err == nil && probed > 0 {
		actual = probed
	}

	switch {
	case actual > target+trimSlack:
		trimmed := filepath.Join(tempDir, fmt.Sprintf("trim_%03d_%s.mp4", index, sh.ShotID))
		if err := e.muxer.Trim(ctx, clipPath, target, trimmed); err == nil {
			return trimmed, nil
		}
		log.Printf("[Export] Trim failed for %s, falling back to speed adjust", sh.ShotID)
		fallthrough
	case actual < target-0.01:
		factor := actual / target
		retimed := filepath.Join(tempDir, fmt.Sprintf("retime_%03d_%s.mp4", index, sh.ShotID))
		if err := e.muxer.SpeedAdjust(ctx, clipPath, factor, retimed); err != nil {
			return "", fmt.Errorf("speed adjust failed for %s: %w", sh.ShotID, err)
		}
		return retimed, nil
	default:
		return clipPath, nil
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseResolution(res string) (int, int) {
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) == 2 {
		w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 == nil && err2 == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultWidth, defaultHeight
}

func cleanupClips(clips []string) {
	for _, c := range clips {
		// Only remove intermediates living in a temp/ folder.
		if strings.Contains(c, string(filepath.Separator)+"temp"+string(filepath.Separator)) {
			os.Remove(c)
		}
	}
}

func mustFromURL(pm *paths.Manager, url string, st *models.State) string {
	p, err := pm.FromURL(url, st)
	if err != nil {
		return ""
	}
	return p
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
