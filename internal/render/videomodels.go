package render

import (
	"fmt"
	"sort"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
)

// VideoModel describes one img2vid backend: its endpoint, the duration range
// it accepts, and how seconds are encoded on the wire.
type VideoModel struct {
	Key           string  `json:"key"`
	Name          string  `json:"name"`
	Endpoint      string  `json:"-"`
	MinDuration   float64 `json:"min_duration"`
	MaxDuration   float64 `json:"max_duration"`
	SupportsAudio bool    `json:"supports_audio"`
	Cost          float64 `json:"cost"`
}

var videoModels = map[string]VideoModel{
	"ltx2": {
		Key: "ltx2", Name: "LTX-2", Endpoint: services.FalLTX2I2V,
		MinDuration: 2, MaxDuration: 10, SupportsAudio: false, Cost: 0.20,
	},
	"kling": {
		Key: "kling", Name: "Kling 2.1", Endpoint: services.FalKlingI2V,
		MinDuration: 5, MaxDuration: 10, SupportsAudio: false, Cost: 0.35,
	},
	"veo31": {
		Key: "veo31", Name: "Veo 3.1", Endpoint: services.FalVeo31I2V,
		MinDuration: 4, MaxDuration: 8, SupportsAudio: true, Cost: 1.20,
	},
	"wan": {
		Key: "wan", Name: "Wan 2.2", Endpoint: services.FalWanI2V,
		MinDuration: 5, MaxDuration: 15, SupportsAudio: false, Cost: 0.30,
	},
	"hailuo": {
		Key: "hailuo", Name: "Hailuo 02", Endpoint: services.FalHailuoI2V,
		MinDuration: 6, MaxDuration: 10, SupportsAudio: false, Cost: 0.45,
	},
	"kandinsky5": {
		Key: "kandinsky5", Name: "Kandinsky 5", Endpoint: services.FalKandinsky5I2V,
		MinDuration: 2, MaxDuration: 10, SupportsAudio: false, Cost: 0.15,
	},
}

const defaultVideoModel = "ltx2"

// VideoModelFor resolves a model key, falling back to the project's choice
// and then the default.
func VideoModelFor(st *models.State, override string) VideoModel {
	if override != "" {
		if m, ok := videoModels[override]; ok {
			return m
		}
	}
	if m, ok := videoModels[st.Project.VideoModelChoice]; ok {
		return m
	}
	return videoModels[defaultVideoModel]
}

// ListVideoModels returns the catalog sorted by key.
func ListVideoModels() []VideoModel {
	out := make([]VideoModel, 0, len(videoModels))
	for _, m := range videoModels {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ClampDuration bounds a storyboard duration to what the model accepts.
func (m VideoModel) ClampDuration(target float64) float64 {
	if target < m.MinDuration {
		return m.MinDuration
	}
	if target > m.MaxDuration {
		return m.MaxDuration
	}
	return target
}

// Payload encodes the generation request with the model's own duration
// semantics: Veo wants an enum of seconds, Wan wants string seconds plus a
// resolution picked by aspect, LTX-2 wants explicit frames at 25 fps.
func (m VideoModel) Payload(prompt, imageURL string, genDuration float64, aspect models.Aspect) map[string]interface{} {
	p := map[string]interface{}{
		"prompt":    prompt,
		"image_url": imageURL,
	}
	switch m.Key {
	case "veo31":
		sec := 4
		switch {
		case genDuration >= 7:
			sec = 8
		case genDuration >= 5:
			sec = 6
		}
		p["duration"] = fmt.Sprintf("%ds", sec)
		p["generate_audio"] = false
	case "wan":
		sec := "5"
		switch {
		case genDuration >= 12.5:
			sec = "15"
		case genDuration >= 7.5:
			sec = "10"
		}
		p["duration"] = sec
		if aspect == models.AspectHorizontal {
			p["resolution"] = "1080p"
		} else {
			p["resolution"] = "720p"
		}
	case "ltx2":
		p["num_frames"] = int(25 * genDuration)
		p["fps"] = 25
	default:
		p["duration"] = int(genDuration + 0.5)
	}
	return p
}
