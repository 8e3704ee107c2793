package castmatrix

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/styles"
)

// Pose tokens for the two canonical references.
const (
	refAPose = "full body studio reference, standing, neutral pose, head to toe visible"
	refBPose = "portrait close-up, head and shoulders, looking toward camera"

	// refNegative keeps the canonical refs clean enough to anchor identity.
	refNegative = "no props, no text, no frame, no watermark, clean neutral background, single subject"

	// styleLockInstruction rides along whenever the style anchor is included.
	styleLockInstruction = "The last reference image defines visual style only — do not take identity, face or body from it."
)

// refPrompt assembles the canonical-ref generation prompt.
func refPrompt(st *models.State, member *models.CastMember, pose string, withStyleLock bool) string {
	preset := styles.Get(st.Project.StylePreset)
	parts := []string{preset.Tokens}
	if strings.TrimSpace(member.PromptExtra) != "" {
		parts = append(parts, member.PromptExtra)
	}
	parts = append(parts, pose, refNegative)
	if withStyleLock {
		parts = append(parts, styleLockInstruction)
	}
	return strings.Join(parts, ". ")
}

// GenerateCanonicalRefs produces ref_a (full body) and ref_b (close-up) for a
// cast member from their first uploaded photo, optionally steered by the
// project's style lock. The first successful generation in an unlocked
// project anchors the style lock to its ref_a.
func (g *Graph) GenerateCanonicalRefs(ctx context.Context, projectID, castID string) (*models.CharacterRefs, error) {
	refA, err := g.generateRef(ctx, projectID, castID, "a")
	if err != nil {
		return nil, err
	}
	refB, err := g.generateRef(ctx, projectID, castID, "b")
	if err != nil {
		// ref_a already landed; surface the failure but leave it in place.
		return nil, fmt.Errorf("ref_b generation failed after ref_a succeeded: %w", err)
	}
	return &models.CharacterRefs{RefA: refA, RefB: refB}, nil
}

// RegenerateRef regenerates just one of the two canonical refs.
func (g *Graph) RegenerateRef(ctx context.Context, projectID, castID, which string) (string, error) {
	if which != "a" && which != "b" {
		return "", apperr.Validation("ref selector must be \"a\" or \"b\", got %q", which)
	}
	return g.generateRef(ctx, projectID, castID, which)
}

func (g *Graph) generateRef(ctx context.Context, projectID, castID, which string) (string, error) {
	st, err := g.store.Load(ctx, projectID)
	if err != nil {
		return "", err
	}
	member := st.FindCast(castID)
	if member == nil {
		return "", apperr.NotFound("cast %s not found", castID)
	}
	if len(member.ReferenceImages) == 0 {
		return "", apperr.Validation("cast %s has no uploaded reference image", castID)
	}

	pose := refAPose
	if which == "b" {
		pose = refBPose
	}
	withStyleLock := st.Project.StyleLockImage != ""
	prompt := refPrompt(st, member, pose, withStyleLock)

	// Identity source first, style anchor last — the instruction in the
	// prompt refers to it by position.
	localRefs := []string{member.ReferenceImages[0].URLLocal}
	if withStyleLock {
		localRefs = append(localRefs, st.Project.StyleLockImage)
	}

	newUploads := map[string]string{}
	externalRefs := make([]string, 0, len(localRefs))
	for _, ref := range localRefs {
		ext, err := g.orch.UploadLocalRef(ctx, st, ref, newUploads)
		if err != nil {
			return "", err
		}
		externalRefs = append(externalRefs, ext)
	}

	note := "ref_" + which
	resultURL, modelKey, err := g.orch.GenerateImage(ctx, st, prompt, externalRefs, fmt.Sprintf("cast_%s:%s", note, castID))
	if err != nil {
		return "", err
	}
	call := g.session.TrackCall(modelKey, g.pricing.Price(modelKey), note)

	baseName := fmt.Sprintf("cast_%s_ref_%s", castID, which)
	localURL, err := g.orch.PersistImage(ctx, st, resultURL, baseName)
	if err != nil {
		return "", err
	}

	err = g.store.WithProjectLock(projectID, func() error {
		fresh, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		if fresh.CastMatrix.CharacterRefs == nil {
			fresh.CastMatrix.CharacterRefs = map[string]models.CharacterRefs{}
		}
		refs := fresh.CastMatrix.CharacterRefs[castID]
		if which == "a" {
			refs.RefA = localURL
		} else {
			refs.RefB = localURL
		}
		fresh.CastMatrix.CharacterRefs[castID] = refs

		// First generated ref_a anchors the style lock.
		if which == "a" && !fresh.Project.StyleLocked {
			fresh.Project.StyleLocked = true
			fresh.Project.StyleLockImage = localURL
			log.Printf("[Cast] Style locked to %s", localURL)
		}

		for k, v := range newUploads {
			fresh.Project.FALUploadCache[k] = v
		}
		fresh.Costs.Add(call)
		return g.store.SaveLocked(fresh, true, false)
	})
	if err != nil {
		return "", err
	}
	return localURL, nil
}
