package render

import (
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
)

// ---------------------------------------------------------------------------
// Model dispatch: each image family has its own endpoints, payload shape and
// reference-count limit. The project's render_models lock decides which
// family every render in a project goes to.
// ---------------------------------------------------------------------------

type familySpec struct {
	t2iEndpoint  string
	editEndpoint string
	maxRefs      int
}

var families = map[models.ImageModel]familySpec{
	models.ImageModelNanobanana: {
		t2iEndpoint:  services.FalNanobanana,
		editEndpoint: services.FalNanobananaEdit,
		maxRefs:      4,
	},
	models.ImageModelSeedream45: {
		t2iEndpoint:  services.FalSeedream45,
		editEndpoint: services.FalSeedream45Edit,
		maxRefs:      10,
	},
	models.ImageModelFlux2: {
		t2iEndpoint:  services.FalFlux2,
		editEndpoint: services.FalFlux2Edit,
		maxRefs:      4,
	},
}

// MaxRefsFor returns the reference-image limit of the locked editor.
func MaxRefsFor(model models.ImageModel) int {
	if fam, ok := families[model]; ok {
		return fam.maxRefs
	}
	return families[models.ImageModelNanobanana].maxRefs
}

// dimensionsFor maps the project aspect to concrete output dimensions for
// editors that want explicit width/height.
func dimensionsFor(aspect models.Aspect) (w, h int) {
	switch aspect {
	case models.AspectVertical:
		return 1080, 1920
	case models.AspectSquare:
		return 1440, 1440
	default:
		return 1920, 1080
	}
}

// imageSizeFor maps the aspect to the named size enums seedream-style
// endpoints accept.
func imageSizeFor(aspect models.Aspect) string {
	switch aspect {
	case models.AspectVertical:
		return "portrait_16_9"
	case models.AspectSquare:
		return "square_hd"
	default:
		return "landscape_16_9"
	}
}

// t2iPayload builds the text-to-image request body for the locked family.
func t2iPayload(model models.ImageModel, aspect models.Aspect, prompt string) interface{} {
	switch model {
	case models.ImageModelSeedream45:
		w, h := dimensionsFor(aspect)
		return map[string]interface{}{
			"prompt":     prompt,
			"image_size": map[string]int{"width": w, "height": h},
			"num_images": 1,
		}
	case models.ImageModelFlux2:
		return map[string]interface{}{
			"prompt":              prompt,
			"image_size":          imageSizeFor(aspect),
			"num_inference_steps": 28,
			"guidance_scale":      3.5,
			"num_images":          1,
		}
	default: // nanobanana
		return map[string]interface{}{
			"prompt":       prompt,
			"aspect_ratio": aspect.AspectRatio(),
			"num_images":   1,
		}
	}
}

// editPayload builds the img2img request body. refURLs must already be
// external and within the family's limit.
func editPayload(model models.ImageModel, aspect models.Aspect, prompt string, refURLs []string) interface{} {
	switch model {
	case models.ImageModelSeedream45:
		w, h := dimensionsFor(aspect)
		return map[string]interface{}{
			"prompt":     prompt,
			"image_urls": refURLs,
			"image_size": map[string]int{"width": w, "height": h},
			"num_images": 1,
		}
	case models.ImageModelFlux2:
		return map[string]interface{}{
			"prompt":              prompt,
			"image_urls":          refURLs,
			"image_size":          imageSizeFor(aspect),
			"num_inference_steps": 28,
			"guidance_scale":      3.5,
			"num_images":          1,
		}
	default: // nanobanana
		return map[string]interface{}{
			"prompt":       prompt,
			"image_urls":   refURLs,
			"aspect_ratio": aspect.AspectRatio(),
			"num_images":   1,
		}
	}
}

// endpointsFor resolves the locked family's endpoints.
func endpointsFor(model models.ImageModel) familySpec {
	if fam, ok := families[model]; ok {
		return fam
	}
	return families[models.ImageModelNanobanana]
}
