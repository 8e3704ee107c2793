package render

import (
	"strings"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/styles"
)

// negativeSuffix is appended to every shot prompt.
const negativeSuffix = "no text, no watermark, no subtitles, no logo"

// maxWardrobeCast bounds how many cast members get wardrobe lines per shot.
const maxWardrobeCast = 2

// energyTokens translates a shot's energy into pacing vocabulary.
func energyTokens(energy float64) string {
	switch {
	case energy <= 0.3:
		return "quiet, slow, contemplative pacing"
	case energy <= 0.7:
		return "steady, medium energy"
	default:
		return "high intensity, dramatic, kinetic"
	}
}

// aspectTokens describes the frame orientation to the model.
func aspectTokens(aspect models.Aspect) string {
	switch aspect {
	case models.AspectVertical:
		return "vertical 9:16 framing"
	case models.AspectSquare:
		return "square 1:1 framing"
	default:
		return "widescreen 16:9 framing"
	}
}

// BuildShotPrompt assembles the full generation prompt for a shot: style
// tokens, framing, pacing, the shot's own content fields, per-cast wardrobe
// lines, and the fixed negative suffix.
func BuildShotPrompt(st *models.State, shot *models.Shot) string {
	preset := styles.Get(st.Project.StylePreset)

	parts := []string{
		preset.Tokens,
		aspectTokens(st.Project.Aspect),
		energyTokens(shot.Energy),
	}
	for _, p := range []string{shot.PromptBase, shot.CameraLanguage, shot.Environment} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(shot.SymbolicElements) > 0 {
		parts = append(parts, strings.Join(shot.SymbolicElements, ", "))
	}

	// Wardrobe lines: the shot's own wardrobe entry wins; prompt_extra is
	// only the fallback when the shot says nothing about that cast member.
	count := 0
	for _, castID := range shot.Cast {
		if count >= maxWardrobeCast {
			break
		}
		member := st.FindCast(castID)
		if member == nil {
			continue
		}
		if outfit, ok := shot.Wardrobe[castID]; ok && strings.TrimSpace(outfit) != "" {
			parts = append(parts, member.Name+": "+outfit)
			count++
		} else if strings.TrimSpace(member.PromptExtra) != "" {
			parts = append(parts, member.Name+": "+member.PromptExtra)
			count++
		}
	}

	parts = append(parts, negativeSuffix)
	return strings.Join(parts, ". ")
}

// closeupMarkers trigger portrait-ref selection from camera language.
var closeupMarkers = []string{"close-up", "closeup", "portrait", "head shot", "face", "eyes"}

// isCloseup reports whether the shot's camera language calls for the
// close-up reference instead of the full-body one.
func isCloseup(cameraLanguage string) bool {
	lower := strings.ToLower(cameraLanguage)
	for _, marker := range closeupMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SelectShotRefs picks the local reference URLs for a shot render: per cast
// member the canonical ref matching the framing (falling back to ref_a), then
// the scene's primary decor plate and wardrobe preview. The style lock image
// is deliberately absent — it anchors cast-ref generation only.
func SelectShotRefs(st *models.State, shot *models.Shot) []string {
	var refs []string
	closeup := isCloseup(shot.CameraLanguage)

	for _, castID := range shot.Cast {
		cr, ok := st.CastMatrix.CharacterRefs[castID]
		if !ok {
			continue
		}
		url := cr.RefA
		if closeup && cr.RefB != "" {
			url = cr.RefB
		}
		if url == "" {
			url = cr.RefA
		}
		if url != "" {
			refs = append(refs, url)
		}
	}

	if scene := st.CastMatrix.SceneForSequence(shot.SequenceID); scene != nil {
		if len(scene.DecorRefs) > 0 && scene.DecorRefs[0] != "" {
			refs = append(refs, scene.DecorRefs[0])
		}
		if scene.WardrobeRef != "" {
			refs = append(refs, scene.WardrobeRef)
		}
	}

	return refs
}
