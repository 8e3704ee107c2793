package models

// ReferenceImage is one uploaded source photo of a cast member.
type ReferenceImage struct {
	URLLocal    string `json:"url_local"`
	URLExternal string `json:"url_external,omitempty"`
	Role        string `json:"role,omitempty"` // e.g. "front", "profile"
}

// Conditioning holds identity strength and optional LoRA settings applied
// when rendering a cast member.
type Conditioning struct {
	IdentityStrength float64 `json:"identity_strength,omitempty"`
	LoraURL          string  `json:"lora_url,omitempty"`
	LoraScale        float64 `json:"lora_scale,omitempty"`
}

// MaxReferenceImages caps the uploaded photos per cast member.
const MaxReferenceImages = 3

// CastMember is a character identity: a role, reference photos, and optional
// conditioning. CastID is role-indexed, e.g. "lead_1".
type CastMember struct {
	CastID          string           `json:"cast_id"`
	Name            string           `json:"name"`
	Role            Role             `json:"role"`
	Impact          float64          `json:"impact"` // [0,1]
	PromptExtra     string           `json:"prompt_extra,omitempty"`
	ReferenceImages []ReferenceImage `json:"reference_images"`
	Conditioning    *Conditioning    `json:"conditioning,omitempty"`
}

// CharacterRefs are the two canonical stylized references of a cast member:
// ref_a full-body, ref_b portrait close-up. Stored as local URLs.
type CharacterRefs struct {
	RefA string `json:"ref_a,omitempty"`
	RefB string `json:"ref_b,omitempty"`
}

// Scene is a decor plate (plus optional wardrobe preview) tied one-to-one to
// a sequence by index.
type Scene struct {
	SceneID        string   `json:"scene_id"`
	SequenceID     string   `json:"sequence_id"`
	Title          string   `json:"title"`
	Prompt         string   `json:"prompt"`
	DecorAltPrompt string   `json:"decor_alt_prompt,omitempty"`
	Wardrobe       string   `json:"wardrobe,omitempty"`
	DecorRefs      []string `json:"decor_refs,omitempty"`
	DecorAlt       string   `json:"decor_alt,omitempty"`
	WardrobeRef    string   `json:"wardrobe_ref,omitempty"`
	DecorLocked    bool     `json:"decor_locked"`
	WardrobeLocked bool     `json:"wardrobe_locked"`
	OutputURL      string   `json:"output_url,omitempty"`
}

// CastMatrix is the derived reference graph consumed by shot renders.
type CastMatrix struct {
	CharacterRefs map[string]CharacterRefs `json:"character_refs,omitempty"`
	Scenes        []Scene                  `json:"scenes,omitempty"`
}

// SceneForSequence returns the scene bound to a sequence ID, or nil.
func (m *CastMatrix) SceneForSequence(sequenceID string) *Scene {
	for i := range m.Scenes {
		if m.Scenes[i].SequenceID == sequenceID {
			return &m.Scenes[i]
		}
	}
	return nil
}
