// Package render drives shot image and video generation: prompt assembly,
// reference selection, upload caching, model dispatch with retry, and the
// reload-mutate-save persistence pattern that keeps parallel renders from
// losing writes.
package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/costs"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/state"
)

// Default semaphore permits, overridable through config.
const (
	DefaultImagePermits = 6
	DefaultVideoPermits = 8

	thumbWidth = 320
)

// Thumbnailer produces the WebP thumbnail co-located with each render.
// Satisfied by services.FFmpegMuxer.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, imagePath, outPath string, width int) error
}

type Orchestrator struct {
	store   *state.Store
	paths   *paths.Manager
	fal     *services.FalService
	session *costs.Session
	pricing *costs.Pricing
	debug   *debuglog.Logger
	thumbs  Thumbnailer

	imageSem *semaphore.Weighted
	videoSem *semaphore.Weighted
}

func NewOrchestrator(
	store *state.Store,
	pm *paths.Manager,
	fal *services.FalService,
	session *costs.Session,
	pricing *costs.Pricing,
	debug *debuglog.Logger,
	thumbs Thumbnailer,
	imagePermits, videoPermits int64,
) *Orchestrator {
	if imagePermits <= 0 {
		imagePermits = DefaultImagePermits
	}
	if videoPermits <= 0 {
		videoPermits = DefaultVideoPermits
	}
	return &Orchestrator{
		store:    store,
		paths:    pm,
		fal:      fal,
		session:  session,
		pricing:  pricing,
		debug:    debug,
		thumbs:   thumbs,
		imageSem: semaphore.NewWeighted(imagePermits),
		videoSem: semaphore.NewWeighted(videoPermits),
	}
}

// tally accumulates the side effects of a render that must be merged into the
// freshly reloaded document at save time.
type tally struct {
	uploads []map[string]string
	costs   []models.CostCall
}

func (t *tally) trackUploads(m map[string]string) {
	if len(m) > 0 {
		t.uploads = append(t.uploads, m)
	}
}

func (t *tally) applyTo(st *models.State) {
	if st.Project.FALUploadCache == nil {
		st.Project.FALUploadCache = map[string]string{}
	}
	for _, m := range t.uploads {
		for k, v := range m {
			st.Project.FALUploadCache[k] = v
		}
	}
	for _, c := range t.costs {
		st.Costs.Add(c)
	}
}

// track bills a call against the session ledger now and queues it for the
// project ledger merge. Only called on backend success.
func (o *Orchestrator) track(t *tally, model, note string) {
	call := o.session.TrackCall(model, o.pricing.Price(model), note)
	t.costs = append(t.costs, call)
}

// ---------------------------------------------------------------------------
// Generic generation calls
// ---------------------------------------------------------------------------

// GenerateImage dispatches to the project-locked model family: img2img when
// refURLs is non-empty, text-to-image otherwise. refURLs must already be
// external. Returns the hosted result URL and the billed model key.
func (o *Orchestrator) GenerateImage(ctx context.Context, st *models.State, prompt string, refURLs []string, label string) (string, string, error) {
	family := endpointsFor(st.Project.RenderModels.ImageModel)
	model := st.Project.RenderModels.ImageModel

	var endpoint, modelKey string
	var payload interface{}
	if len(refURLs) > 0 {
		if len(refURLs) > family.maxRefs {
			refURLs = refURLs[:family.maxRefs]
		}
		endpoint = family.editEndpoint
		modelKey = st.Project.RenderModels.EditorKey
		payload = editPayload(model, st.Project.Aspect, prompt, refURLs)
	} else {
		endpoint = family.t2iEndpoint
		modelKey = string(model)
		payload = t2iPayload(model, st.Project.Aspect, prompt)
	}

	var resp services.FalImagesResponse
	err := services.Retry(ctx, services.DefaultRetry, label, func() error {
		return o.fal.Invoke(ctx, endpoint, payload, &resp)
	})
	o.debug.Write(st, debuglog.Entry{
		Kind:     "image",
		Label:    label,
		Model:    modelKey,
		Request:  payload,
		Response: resp,
		Error:    errString(err),
	})
	if err != nil {
		return "", modelKey, err
	}
	url, err := resp.FirstImageURL()
	if err != nil {
		return "", modelKey, err
	}
	return url, modelKey, nil
}

// ---------------------------------------------------------------------------
// Shot rendering
// ---------------------------------------------------------------------------

// RenderShot renders one shot end to end. The shot's render status is only
// ever persisted on a terminal outcome; cancellation leaves the document
// untouched.
func (o *Orchestrator) RenderShot(ctx context.Context, projectID, shotID, negativePrompt string) (*models.Shot, error) {
	st, err := o.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	shot := st.FindShot(shotID)
	if shot == nil {
		return nil, apperr.NotFound("shot %s not found", shotID)
	}

	if err := o.imageSem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindConcurrency, err, "image slot unavailable")
	}
	defer o.imageSem.Release(1)

	t := &tally{}
	prompt := BuildShotPrompt(st, shot)
	if negativePrompt != "" {
		prompt += ". " + negativePrompt
	}

	localRefs := SelectShotRefs(st, shot)
	externalRefs, err := o.uploadRefs(ctx, st, localRefs, t)
	if err != nil {
		return nil, o.persistShotError(ctx, projectID, shotID, t, err)
	}

	resultURL, modelKey, err := o.GenerateImage(ctx, st, prompt, externalRefs, "shot_render:"+shotID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err // no state write on cancellation
		}
		return nil, o.persistShotError(ctx, projectID, shotID, t, err)
	}
	o.track(t, modelKey, "shot_render")

	localURL, err := o.persistImage(ctx, st, resultURL, state.RenderFileName(shotID))
	if err != nil {
		return nil, o.persistShotError(ctx, projectID, shotID, t, err)
	}

	var updated *models.Shot
	err = o.store.WithProjectLock(projectID, func() error {
		fresh, err := o.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sh := fresh.FindShot(shotID)
		if sh == nil {
			return apperr.NotFound("shot %s disappeared during render", shotID)
		}
		sh.Render.Status = models.RenderStatusDone
		sh.Render.ImageURL = localURL
		sh.Render.Model = modelKey
		sh.Render.RefImagesUsed = localRefs
		sh.Render.Error = ""
		t.applyTo(fresh)
		if err := o.store.SaveLocked(fresh, true, false); err != nil {
			return err
		}
		copied := *sh
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Render] Shot %s rendered → %s", shotID, localURL)
	return updated, nil
}

// EditShot runs an img2img pass over a shot's existing render, optionally
// pulling in extra cast refs and one ad-hoc guide image.
func (o *Orchestrator) EditShot(ctx context.Context, projectID, shotID, editPrompt string, extraCast []string, refImageURL string) (*models.Shot, error) {
	if editPrompt == "" {
		return nil, apperr.Validation("edit_prompt is required")
	}
	st, err := o.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	shot := st.FindShot(shotID)
	if shot == nil {
		return nil, apperr.NotFound("shot %s not found", shotID)
	}
	if shot.Render.ImageURL == "" {
		return nil, apperr.Validation("shot %s has no render to edit", shotID)
	}

	if err := o.imageSem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindConcurrency, err, "image slot unavailable")
	}
	defer o.imageSem.Release(1)

	t := &tally{}
	localRefs := []string{shot.Render.ImageURL}
	for _, castID := range extraCast {
		if cr, ok := st.CastMatrix.CharacterRefs[castID]; ok && cr.RefA != "" {
			localRefs = append(localRefs, cr.RefA)
		}
	}
	if refImageURL != "" {
		localRefs = append(localRefs, refImageURL)
	}

	externalRefs, err := o.uploadRefs(ctx, st, localRefs, t)
	if err != nil {
		return nil, err
	}

	resultURL, modelKey, err := o.GenerateImage(ctx, st, editPrompt, externalRefs, "shot_edit:"+shotID)
	if err != nil {
		return nil, err
	}
	o.track(t, modelKey, "shot_edit")

	localURL, err := o.persistImage(ctx, st, resultURL, state.RenderFileName(shotID))
	if err != nil {
		return nil, err
	}

	var updated *models.Shot
	err = o.store.WithProjectLock(projectID, func() error {
		fresh, err := o.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sh := fresh.FindShot(shotID)
		if sh == nil {
			return apperr.NotFound("shot %s disappeared during edit", shotID)
		}
		sh.Render.Status = models.RenderStatusDone
		sh.Render.ImageURL = localURL
		sh.Render.Model = modelKey
		sh.Render.RefImagesUsed = localRefs
		sh.Render.Error = ""
		t.applyTo(fresh)
		if err := o.store.SaveLocked(fresh, true, false); err != nil {
			return err
		}
		copied := *sh
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// uploadRefs converts local ref URLs to external ones through the cache.
func (o *Orchestrator) uploadRefs(ctx context.Context, st *models.State, localRefs []string, t *tally) ([]string, error) {
	if len(localRefs) == 0 {
		return nil, nil
	}
	newUploads := map[string]string{}
	out := make([]string, 0, len(localRefs))
	for _, ref := range localRefs {
		external, err := o.UploadLocalRef(ctx, st, ref, newUploads)
		if err != nil {
			return nil, err
		}
		out = append(out, external)
	}
	t.trackUploads(newUploads)
	return out, nil
}

// PersistImage downloads a hosted result into renders/ under baseName and
// returns the stable /files/ URL. Used by the cast-matrix generators, which
// share the orchestrator's download/thumbnail path.
func (o *Orchestrator) PersistImage(ctx context.Context, st *models.State, resultURL, baseName string) (string, error) {
	return o.persistImage(ctx, st, resultURL, baseName)
}

// persistImage downloads a hosted result into renders/, writes the WebP
// thumbnail next to it, and returns the stable /files/ URL.
func (o *Orchestrator) persistImage(ctx context.Context, st *models.State, resultURL, baseName string) (string, error) {
	rendersDir, err := o.paths.RendersDir(st)
	if err != nil {
		return "", err
	}
	ext := extFromURL(resultURL)
	dest := filepath.Join(rendersDir, baseName+ext)
	if err := o.fal.Download(ctx, resultURL, dest); err != nil {
		return "", fmt.Errorf("failed to download render: %w", err)
	}

	thumbPath := filepath.Join(rendersDir, baseName+"_thumb.webp")
	if err := o.thumbs.Thumbnail(ctx, dest, thumbPath, thumbWidth); err != nil {
		log.Printf("[Render] Thumbnail failed for %s: %v", baseName, err)
	}
	return o.paths.ToURL(dest), nil
}

// persistShotError writes the terminal error outcome for a shot and returns
// the original error. A cancelled render writes nothing.
func (o *Orchestrator) persistShotError(ctx context.Context, projectID, shotID string, t *tally, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return cause
	}
	lockErr := o.store.WithProjectLock(projectID, func() error {
		fresh, err := o.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sh := fresh.FindShot(shotID)
		if sh == nil {
			return nil
		}
		sh.Render.Status = models.RenderStatusError
		sh.Render.Error = cause.Error()
		t.applyTo(fresh)
		return o.store.SaveLocked(fresh, false, false)
	})
	if lockErr != nil {
		log.Printf("[Render] Failed to persist error for shot %s: %v", shotID, lockErr)
	}
	return cause
}

func extFromURL(url string) string {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	switch ext := filepath.Ext(trimmed); ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return ext
	}
	return ".png"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
