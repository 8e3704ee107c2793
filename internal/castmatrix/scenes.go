package castmatrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/styles"
)

const sceneSystemPrompt = `You are a production designer for a music video.
You design decor plates: wide establishing views of a location with NO people,
NO characters, NO figures of any kind in them. Return JSON only.`

// decorPromptSuffix keeps generated plates people-free and wide.
const decorPromptSuffix = "wide establishing shot, empty location, no people, no characters, no figures, no text"

type sceneGenResponse struct {
	Scenes []struct {
		SequenceID     string `json:"sequence_id"`
		Title          string `json:"title"`
		Prompt         string `json:"prompt"`
		DecorAltPrompt string `json:"decor_alt_prompt"`
		Wardrobe       string `json:"wardrobe"`
	} `json:"scenes"`
}

// AutogenScenes derives exactly one decor scene per sequence, in sequence
// order, via the preferred LLM. Existing scenes are replaced except where a
// lock is held.
func (g *Graph) AutogenScenes(ctx context.Context, projectID, llmPreference string) ([]models.Scene, error) {
	st, err := g.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(st.Storyboard.Sequences) == 0 {
		return nil, apperr.Validation("project has no sequences; build the storyboard first")
	}
	if llmPreference == "" {
		llmPreference = st.Project.LLMPreference
	}
	provider, err := g.llm(llmPreference)
	if err != nil {
		return nil, err
	}

	preset := styles.Get(st.Project.StylePreset)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Visual style: %s (%s)\n", preset.Name, preset.Tokens)
	fmt.Fprintf(&sb, "Song story: %s\n\n", st.Storyboard.StorySummary)
	sb.WriteString("Design one decor scene per sequence. Sequences:\n")
	for _, seq := range st.Storyboard.Sequences {
		fmt.Fprintf(&sb, "- %s (%s, %.0f-%.0fs): %s\n", seq.SequenceID, seq.StructureType, seq.Start, seq.End, seq.Description)
	}
	sb.WriteString(`
Return {"scenes":[{"sequence_id","title","prompt","decor_alt_prompt","wardrobe"}]} with exactly one entry per sequence, in order.
"prompt" describes the location as a wide establishing view with no people.
"decor_alt_prompt" is an optional alternative angle (empty string if none).
"wardrobe" is an optional outfit description for the lead in this scene (empty string if none).`)

	raw, err := provider.CompleteJSON(ctx, sceneSystemPrompt, sb.String())
	g.debug.Write(st, debuglog.Entry{
		Kind:     "llm",
		Label:    "autogen_scenes",
		Model:    provider.Model(),
		Request:  sb.String(),
		Response: raw,
		Error:    errString(err),
	})
	if err != nil {
		return nil, fmt.Errorf("scene generation failed: %w", err)
	}
	call := g.session.TrackCall("llm_"+provider.Name(), g.pricing.Price("llm_"+provider.Name()), "autogen_scenes")

	var parsed sceneGenResponse
	if err := json.Unmarshal([]byte(services.StripJSONFences(raw)), &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindBackendPermanent, err, "scene generation returned unusable JSON")
	}

	var out []models.Scene
	err = g.store.WithProjectLock(projectID, func() error {
		fresh, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}

		prior := map[string]models.Scene{}
		for _, sc := range fresh.CastMatrix.Scenes {
			prior[sc.SequenceID] = sc
		}

		scenes := make([]models.Scene, 0, len(fresh.Storyboard.Sequences))
		for i, seq := range fresh.Storyboard.Sequences {
			scene := models.Scene{
				SceneID:    fmt.Sprintf("scene_%02d", i+1),
				SequenceID: seq.SequenceID,
				Title:      seq.Label,
			}
			// Match the LLM's entry by sequence_id, falling back to order.
			if i < len(parsed.Scenes) {
				entry := parsed.Scenes[i]
				for _, e := range parsed.Scenes {
					if e.SequenceID == seq.SequenceID {
						entry = e
						break
					}
				}
				if entry.Title != "" {
					scene.Title = entry.Title
				}
				scene.Prompt = entry.Prompt
				scene.DecorAltPrompt = entry.DecorAltPrompt
				scene.Wardrobe = entry.Wardrobe
			}
			// A held lock keeps the previous decor/wardrobe outputs.
			if old, ok := prior[seq.SequenceID]; ok {
				if old.DecorLocked {
					scene.Prompt = old.Prompt
					scene.DecorRefs = old.DecorRefs
					scene.DecorAlt = old.DecorAlt
					scene.DecorAltPrompt = old.DecorAltPrompt
					scene.DecorLocked = true
				}
				if old.WardrobeLocked {
					scene.Wardrobe = old.Wardrobe
					scene.WardrobeRef = old.WardrobeRef
					scene.WardrobeLocked = true
				}
			}
			scenes = append(scenes, scene)
		}
		fresh.CastMatrix.Scenes = scenes
		fresh.Costs.Add(call)
		if err := g.store.SaveLocked(fresh, true, false); err != nil {
			return err
		}
		out = append([]models.Scene(nil), scenes...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RenderScene generates the decor plate for one scene (plus the alternative
// plate and wardrobe preview when their prompts are set). Locks block the
// corresponding re-render until cleared.
func (g *Graph) RenderScene(ctx context.Context, projectID, sceneID string) (*models.Scene, error) {
	st, err := g.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scene := st.FindScene(sceneID)
	if scene == nil {
		return nil, apperr.NotFound("scene %s not found", sceneID)
	}

	preset := styles.Get(st.Project.StylePreset)
	var calls []models.CostCall
	var decorURL, decorAltURL, wardrobeURL string

	if !scene.DecorLocked {
		if strings.TrimSpace(scene.Prompt) == "" {
			return nil, apperr.Validation("scene %s has no decor prompt", sceneID)
		}
		prompt := strings.Join([]string{preset.Tokens, scene.Prompt, decorPromptSuffix}, ". ")
		resultURL, modelKey, err := g.orch.GenerateImage(ctx, st, prompt, nil, "scene_decor:"+sceneID)
		if err != nil {
			return nil, err
		}
		calls = append(calls, g.session.TrackCall(modelKey, g.pricing.Price(modelKey), "scene_decor"))
		decorURL, err = g.orch.PersistImage(ctx, st, resultURL, fmt.Sprintf("scene_%s_decor", sceneID))
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(scene.DecorAltPrompt) != "" {
			altPrompt := strings.Join([]string{preset.Tokens, scene.DecorAltPrompt, decorPromptSuffix}, ". ")
			altURL, modelKey, err := g.orch.GenerateImage(ctx, st, altPrompt, nil, "scene_decor_alt:"+sceneID)
			if err != nil {
				log.Printf("[Scene] Alt decor failed for %s: %v", sceneID, err)
			} else {
				calls = append(calls, g.session.TrackCall(modelKey, g.pricing.Price(modelKey), "scene_decor_alt"))
				decorAltURL, err = g.orch.PersistImage(ctx, st, altURL, fmt.Sprintf("scene_%s_decor_alt", sceneID))
				if err != nil {
					return nil, err
				}
			}
		}
	} else {
		log.Printf("[Scene] Decor for %s is locked, skipping", sceneID)
	}

	if strings.TrimSpace(scene.Wardrobe) != "" && !scene.WardrobeLocked {
		url, call, err := g.generateWardrobeRef(ctx, st, scene, decorURL)
		if err != nil {
			log.Printf("[Scene] Wardrobe preview failed for %s: %v", sceneID, err)
		} else {
			wardrobeURL = url
			calls = append(calls, call)
		}
	}

	var updated *models.Scene
	err = g.store.WithProjectLock(projectID, func() error {
		fresh, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sc := fresh.FindScene(sceneID)
		if sc == nil {
			return apperr.NotFound("scene %s disappeared during render", sceneID)
		}
		if decorURL != "" {
			sc.DecorRefs = []string{decorURL}
			sc.OutputURL = decorURL
		}
		if decorAltURL != "" {
			sc.DecorAlt = decorAltURL
		}
		if wardrobeURL != "" {
			sc.WardrobeRef = wardrobeURL
		}
		for _, c := range calls {
			fresh.Costs.Add(c)
		}
		if err := g.store.SaveLocked(fresh, true, false); err != nil {
			return err
		}
		copied := *sc
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// generateWardrobeRef composes the lead's canonical full-body ref, the
// scene's decor plate, and the wardrobe text into one preview: the character,
// in costume, in that space.
func (g *Graph) generateWardrobeRef(ctx context.Context, st *models.State, scene *models.Scene, freshDecorURL string) (string, models.CostCall, error) {
	var none models.CostCall

	leadID := PrimaryLeadID(st.Cast)
	if leadID == "" {
		return "", none, apperr.Validation("no lead cast member for wardrobe preview")
	}
	refs, ok := st.CastMatrix.CharacterRefs[leadID]
	if !ok || refs.RefA == "" {
		return "", none, apperr.Validation("lead %s has no canonical ref_a yet", leadID)
	}

	decor := freshDecorURL
	if decor == "" && len(scene.DecorRefs) > 0 {
		decor = scene.DecorRefs[0]
	}

	localRefs := []string{refs.RefA}
	if decor != "" {
		localRefs = append(localRefs, decor)
	}
	newUploads := map[string]string{}
	externalRefs := make([]string, 0, len(localRefs))
	for _, ref := range localRefs {
		ext, err := g.orch.UploadLocalRef(ctx, st, ref, newUploads)
		if err != nil {
			return "", none, err
		}
		externalRefs = append(externalRefs, ext)
	}

	preset := styles.Get(st.Project.StylePreset)
	prompt := strings.Join([]string{
		preset.Tokens,
		"The character from the first reference, standing in the location from the second reference",
		"wearing: " + scene.Wardrobe,
		"full body visible, natural pose, no text, no watermark",
	}, ". ")

	resultURL, modelKey, err := g.orch.GenerateImage(ctx, st, prompt, externalRefs, "wardrobe_ref:"+scene.SceneID)
	if err != nil {
		return "", none, err
	}
	call := g.session.TrackCall(modelKey, g.pricing.Price(modelKey), "wardrobe_ref")

	localURL, err := g.orch.PersistImage(ctx, st, resultURL, fmt.Sprintf("scene_%s_wardrobe", scene.SceneID))
	if err != nil {
		return "", none, err
	}
	return localURL, call, nil
}

// SetSceneLocks updates the decor/wardrobe locks on a scene.
func (g *Graph) SetSceneLocks(projectID, sceneID string, decorLocked, wardrobeLocked *bool) error {
	return g.store.WithProjectLock(projectID, func() error {
		st, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		sc := st.FindScene(sceneID)
		if sc == nil {
			return apperr.NotFound("scene %s not found", sceneID)
		}
		if decorLocked != nil {
			sc.DecorLocked = *decorLocked
		}
		if wardrobeLocked != nil {
			sc.WardrobeLocked = *wardrobeLocked
		}
		return g.store.SaveLocked(st, false, false)
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
