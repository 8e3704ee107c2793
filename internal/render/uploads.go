package render

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

// UploadLocalRef converts a local /files/... URL into an external URL the
// editors can consume. Cached entries are HEAD-revalidated before reuse; a
// stale entry triggers a fresh upload. New mappings are recorded both on the
// in-memory state and in newUploads so the caller can merge them into the
// reloaded document at save time.
func (o *Orchestrator) UploadLocalRef(ctx context.Context, st *models.State, localURL string, newUploads map[string]string) (string, error) {
	if paths.IsExternalURL(localURL) {
		return localURL, nil
	}

	if cached, ok := st.Project.FALUploadCache[localURL]; ok && cached != "" {
		if o.fal.HeadOK(ctx, cached) {
			return cached, nil
		}
		log.Printf("[Render] Stale upload cache entry for %s, re-uploading", localURL)
		delete(st.Project.FALUploadCache, localURL)
	}

	fsPath, err := o.paths.FromURL(localURL, st)
	if err != nil {
		return "", err
	}
	external, err := o.fal.UploadFile(ctx, fsPath)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localURL, err)
	}

	if st.Project.FALUploadCache == nil {
		st.Project.FALUploadCache = map[string]string{}
	}
	st.Project.FALUploadCache[localURL] = external
	if newUploads != nil {
		newUploads[localURL] = external
	}
	return external, nil
}

// PrewarmUploadCache uploads every cast ref and scene decor/wardrobe ref not
// yet cached, so a following render batch spends no time on uploads. Returns
// the number of fresh uploads performed.
func (o *Orchestrator) PrewarmUploadCache(ctx context.Context, projectID string) (int, error) {
	var uploaded int
	err := o.store.WithProjectLock(projectID, func() error {
		st, err := o.store.LoadLocked(projectID)
		if err != nil {
			return err
		}

		var targets []string
		for _, refs := range st.CastMatrix.CharacterRefs {
			if refs.RefA != "" {
				targets = append(targets, refs.RefA)
			}
			if refs.RefB != "" {
				targets = append(targets, refs.RefB)
			}
		}
		for _, sc := range st.CastMatrix.Scenes {
			targets = append(targets, sc.DecorRefs...)
			if sc.WardrobeRef != "" {
				targets = append(targets, sc.WardrobeRef)
			}
		}

		fresh := map[string]string{}
		for _, url := range targets {
			if _, err := o.UploadLocalRef(ctx, st, url, fresh); err != nil {
				log.Printf("[Render] Prewarm upload failed for %s: %v", url, err)
			}
		}
		uploaded = len(fresh)
		if uploaded > 0 {
			return o.store.SaveLocked(st, false, false)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[Render] Prewarmed %d uploads for project %s", uploaded, projectID)
	return uploaded, nil
}
