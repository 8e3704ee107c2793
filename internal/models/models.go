package models

import (
	"time"
)

// Enums

type Aspect string

const (
	AspectHorizontal Aspect = "horizontal"
	AspectVertical   Aspect = "vertical"
	AspectSquare     Aspect = "square"
)

// ValidAspect reports whether a is one of the three supported orientations.
func ValidAspect(a Aspect) bool {
	switch a {
	case AspectHorizontal, AspectVertical, AspectSquare:
		return true
	}
	return false
}

// AspectRatio returns the wire-format ratio string for the generation backends.
func (a Aspect) AspectRatio() string {
	switch a {
	case AspectVertical:
		return "9:16"
	case AspectSquare:
		return "1:1"
	default:
		return "16:9"
	}
}

type Role string

const (
	RoleLead       Role = "lead"
	RoleSupporting Role = "supporting"
	RoleExtra      Role = "extra"
)

// SortWeight orders roles lead < supporting < extra for cast sorting.
func (r Role) SortWeight() int {
	switch r {
	case RoleLead:
		return 0
	case RoleSupporting:
		return 1
	default:
		return 2
	}
}

type RenderStatus string

const (
	RenderStatusNone      RenderStatus = "none"
	RenderStatusRendering RenderStatus = "rendering"
	RenderStatusDone      RenderStatus = "done"
	RenderStatusError     RenderStatus = "error"
)

type ImageModel string

const (
	ImageModelNanobanana ImageModel = "nanobanana"
	ImageModelSeedream45 ImageModel = "seedream45"
	ImageModelFlux2      ImageModel = "flux2"
)

// EditorKey returns the img2img editor variant locked for an image model choice.
func (m ImageModel) EditorKey() string {
	switch m {
	case ImageModelSeedream45:
		return "seedream45_edit"
	case ImageModelFlux2:
		return "flux2_edit"
	default:
		return "nanobanana_edit"
	}
}

// RenderModels is the derived lock of the active text-to-image model and
// img2img editor, computed once from the project's image_model_choice so that
// every render in a project goes to the same model family.
type RenderModels struct {
	ImageModel ImageModel `json:"image_model"`
	EditorKey  string     `json:"editor_key"`
}

// LockRenderModels derives the render model lock from an image model choice.
func LockRenderModels(choice ImageModel) RenderModels {
	switch choice {
	case ImageModelNanobanana, ImageModelSeedream45, ImageModelFlux2:
	default:
		choice = ImageModelNanobanana
	}
	return RenderModels{ImageModel: choice, EditorKey: choice.EditorKey()}
}

// Project is the root metadata record of a project document.
type Project struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	StylePreset      string       `json:"style_preset"`
	Aspect           Aspect       `json:"aspect"`
	LLMPreference    string       `json:"llm_preference"`
	ImageModelChoice ImageModel   `json:"image_model_choice"`
	VideoModelChoice string       `json:"video_model_choice"`
	UseWhisper       bool         `json:"use_whisper"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
	CreatedVersion   string       `json:"created_version"`
	ProjectLocation  string       `json:"project_location,omitempty"`
	StyleLocked      bool         `json:"style_locked"`
	StyleLockImage   string       `json:"style_lock_image,omitempty"`
	RenderModels     RenderModels `json:"render_models"`

	// FALUploadCache maps local /files/... URLs to external upload URLs.
	// Entries are soft: revalidated by HEAD before reuse.
	FALUploadCache map[string]string `json:"fal_upload_cache,omitempty"`
}

// State is the single authoritative project document. Everything the pipeline
// produces lives inside it; cross-references between subtrees are string IDs.
type State struct {
	Project    Project      `json:"project"`
	AudioDNA   *AudioDNA    `json:"audio_dna,omitempty"`
	Cast       []CastMember `json:"cast"`
	CastMatrix CastMatrix   `json:"cast_matrix"`
	Storyboard Storyboard   `json:"storyboard"`
	Costs      CostLedger   `json:"costs"`
}

// NowISO formats t the way the state document stores timestamps.
func NowISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FindSequence returns a pointer into the storyboard's sequence slice, or nil.
func (s *State) FindSequence(sequenceID string) *Sequence {
	for i := range s.Storyboard.Sequences {
		if s.Storyboard.Sequences[i].SequenceID == sequenceID {
			return &s.Storyboard.Sequences[i]
		}
	}
	return nil
}

// FindShot returns a pointer into the storyboard's shot slice, or nil.
func (s *State) FindShot(shotID string) *Shot {
	for i := range s.Storyboard.Shots {
		if s.Storyboard.Shots[i].ShotID == shotID {
			return &s.Storyboard.Shots[i]
		}
	}
	return nil
}

// FindCast returns a pointer into the cast slice, or nil.
func (s *State) FindCast(castID string) *CastMember {
	for i := range s.Cast {
		if s.Cast[i].CastID == castID {
			return &s.Cast[i]
		}
	}
	return nil
}

// FindScene returns a pointer into the cast matrix's scene slice, or nil.
func (s *State) FindScene(sceneID string) *Scene {
	for i := range s.CastMatrix.Scenes {
		if s.CastMatrix.Scenes[i].SceneID == sceneID {
			return &s.CastMatrix.Scenes[i]
		}
	}
	return nil
}

// ShotsForSequence returns the shots belonging to a sequence, in stored order.
func (s *State) ShotsForSequence(sequenceID string) []*Shot {
	var out []*Shot
	for i := range s.Storyboard.Shots {
		if s.Storyboard.Shots[i].SequenceID == sequenceID {
			out = append(out, &s.Storyboard.Shots[i])
		}
	}
	return out
}

// DurationSec returns the analyzed audio duration, or 0 when no audio is set.
func (s *State) DurationSec() float64 {
	if s.AudioDNA == nil {
		return 0
	}
	return s.AudioDNA.Meta.DurationSec
}
