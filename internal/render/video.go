package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
)

// defaultMotionPrompt is used when a shot carries no usable motion cues.
const defaultMotionPrompt = "Natural cinematic motion, smooth camera movement"

// BuildMotionPrompt derives the img2vid prompt from the shot: camera
// language, an energy-derived motion register, the environment, and the first
// two symbolic elements.
func BuildMotionPrompt(shot *models.Shot) string {
	var parts []string
	if strings.TrimSpace(shot.CameraLanguage) != "" {
		parts = append(parts, shot.CameraLanguage)
	}
	if shot.Energy > 0.6 {
		parts = append(parts, "dynamic motion")
	} else {
		parts = append(parts, "subtle motion")
	}
	if strings.TrimSpace(shot.Environment) != "" {
		parts = append(parts, shot.Environment)
	}
	elems := shot.SymbolicElements
	if len(elems) > 2 {
		elems = elems[:2]
	}
	parts = append(parts, elems...)

	if len(parts) == 1 && shot.CameraLanguage == "" && shot.Environment == "" && len(shot.SymbolicElements) == 0 {
		return defaultMotionPrompt
	}
	return strings.Join(parts, ", ")
}

// GenerateShotVideo produces an img2vid clip for a rendered shot and stores
// it under shot.render.video with both the as-generated duration and the
// storyboard target.
func (o *Orchestrator) GenerateShotVideo(ctx context.Context, projectID, shotID, modelOverride string) (*models.ShotVideo, error) {
	st, err := o.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	shot := st.FindShot(shotID)
	if shot == nil {
		return nil, apperr.NotFound("shot %s not found", shotID)
	}
	if shot.Render.ImageURL == "" {
		return nil, apperr.Validation("shot %s has no rendered image", shotID)
	}

	if err := o.videoSem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindConcurrency, err, "video slot unavailable")
	}
	defer o.videoSem.Release(1)

	model := VideoModelFor(st, modelOverride)
	targetDuration := shot.Duration()
	genDuration := model.ClampDuration(targetDuration)
	motionPrompt := BuildMotionPrompt(shot)

	t := &tally{}
	newUploads := map[string]string{}
	imageURL, err := o.UploadLocalRef(ctx, st, shot.Render.ImageURL, newUploads)
	if err != nil {
		return nil, err
	}
	t.trackUploads(newUploads)

	payload := model.Payload(motionPrompt, imageURL, genDuration, st.Project.Aspect)
	var resp services.FalVideoResponse
	err = services.Retry(ctx, services.DefaultRetry, "shot_video:"+shotID, func() error {
		return o.fal.Invoke(ctx, model.Endpoint, payload, &resp)
	})
	o.debug.Write(st, debuglog.Entry{
		Kind:     "video",
		Label:    "shot_video:" + shotID,
		Model:    model.Key,
		Request:  payload,
		Response: resp,
		Error:    errString(err),
	})
	if err != nil {
		return nil, err
	}
	o.track(t, model.Key, "shot_video")

	resultURL, err := resp.URL()
	if err != nil {
		return nil, err
	}

	videoDir, err := o.paths.VideoDir(st)
	if err != nil {
		return nil, err
	}
	localPath := filepath.Join(videoDir, fmt.Sprintf("video_%s.mp4", shotID))
	if err := o.fal.Download(ctx, resultURL, localPath); err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}

	// The model rarely returns exactly what was asked for; record what it
	// actually produced so the exporter can trim or retime precisely.
	actualDuration := genDuration
	if resp.Video != nil && resp.Video.Duration > 0 {
		actualDuration = resp.Video.Duration
	}

	video := &models.ShotVideo{
		VideoURL:       o.paths.ToURL(localPath),
		LocalPath:      localPath,
		Duration:       actualDuration,
		TargetDuration: targetDuration,
		Model:          model.Key,
		HasAudio:       model.SupportsAudio,
		GeneratedAt:    models.NowISO(time.Now()),
		MotionPrompt:   motionPrompt,
	}

	err = o.store.WithProjectLock(projectID, func() error {
		fresh, err := o.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sh := fresh.FindShot(shotID)
		if sh == nil {
			return apperr.NotFound("shot %s disappeared during video generation", shotID)
		}
		sh.Render.Video = video
		t.applyTo(fresh)
		return o.store.SaveLocked(fresh, false, false)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Video] Shot %s → %s (%.1fs generated, %.1fs target)", shotID, video.VideoURL, video.Duration, video.TargetDuration)
	return video, nil
}

// BatchResult summarizes a video generation batch.
type BatchResult struct {
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Total   int               `json:"total"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// GenerateVideosForShots filters to shots that have an image and no video
// (unless explicitly listed) and generates clips concurrently under the video
// semaphore.
func (o *Orchestrator) GenerateVideosForShots(ctx context.Context, projectID string, shotIDs []string, modelOverride string) (*BatchResult, error) {
	st, err := o.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}

	explicit := map[string]bool{}
	for _, id := range shotIDs {
		explicit[id] = true
	}

	result := &BatchResult{Errors: map[string]string{}}
	var mu sync.Mutex
	var targets []string
	for i := range st.Storyboard.Shots {
		sh := &st.Storyboard.Shots[i]
		if len(explicit) > 0 && !explicit[sh.ShotID] {
			continue
		}
		if sh.Render.ImageURL == "" || (sh.Render.Video != nil && len(explicit) == 0) {
			result.Skipped++
			continue
		}
		targets = append(targets, sh.ShotID)
	}
	result.Total = result.Skipped + len(targets)

	g, gctx := errgroup.WithContext(ctx)
	for _, shotID := range targets {
		shotID := shotID
		g.Go(func() error {
			_, err := o.GenerateShotVideo(gctx, projectID, shotID, modelOverride)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				result.Failed++
				result.Errors[shotID] = err.Error()
				log.Printf("[Video] Batch: shot %s failed: %v", shotID, err)
			} else {
				result.Success++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && errors.Is(err, context.Canceled) {
		return result, err
	}
	log.Printf("[Video] Batch for %s: %d ok, %d failed, %d skipped", projectID, result.Success, result.Failed, result.Skipped)
	return result, nil
}
