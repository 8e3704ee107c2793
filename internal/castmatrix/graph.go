package castmatrix

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/costs"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
	"github.com/bobarin/muvi/internal/render"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/state"
)

// LLMFactory resolves an llm preference into a provider.
type LLMFactory func(preference string) (services.LLMProvider, error)

type Graph struct {
	store   *state.Store
	paths   *paths.Manager
	orch    *render.Orchestrator
	session *costs.Session
	pricing *costs.Pricing
	debug   *debuglog.Logger
	llm     LLMFactory
}

func NewGraph(
	store *state.Store,
	pm *paths.Manager,
	orch *render.Orchestrator,
	session *costs.Session,
	pricing *costs.Pricing,
	debug *debuglog.Logger,
	llm LLMFactory,
) *Graph {
	return &Graph{
		store:   store,
		paths:   pm,
		orch:    orch,
		session: session,
		pricing: pricing,
		debug:   debug,
		llm:     llm,
	}
}

// ---------------------------------------------------------------------------
// Cast CRUD
// ---------------------------------------------------------------------------

// AddCast registers a new cast member from an uploaded photo already stored
// inside the project folder. The photo is also pushed to FAL storage so the
// editors can consume it without a later upload round-trip.
func (g *Graph) AddCast(ctx context.Context, projectID, imagePath, name string, role models.Role, impact float64) (*models.CastMember, error) {
	switch role {
	case models.RoleLead, models.RoleSupporting, models.RoleExtra:
	default:
		return nil, apperr.Validation("invalid role %q", role)
	}
	if impact < 0 || impact > 1 {
		return nil, apperr.Validation("impact %.2f out of [0,1]", impact)
	}

	var member *models.CastMember
	err := g.store.WithProjectLock(projectID, func() error {
		st, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}

		count := 0
		for _, c := range st.Cast {
			if c.Role == role {
				count++
			}
		}
		castID := fmt.Sprintf("%s_%d", role, count+1)

		localURL := g.paths.ToURL(imagePath)
		externalURL, err := g.orch.UploadLocalRef(ctx, st, localURL, nil)
		if err != nil {
			log.Printf("[Cast] External upload failed for %s, keeping local only: %v", castID, err)
			externalURL = ""
		}

		if name == "" {
			name = castID
		}
		st.Cast = append(st.Cast, models.CastMember{
			CastID: castID,
			Name:   name,
			Role:   role,
			Impact: impact,
			ReferenceImages: []models.ReferenceImage{{
				URLLocal:    localURL,
				URLExternal: externalURL,
				Role:        "front",
			}},
		})
		member = &st.Cast[len(st.Cast)-1]
		return g.store.SaveLocked(st, true, false)
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// AddCastReference attaches another photo to an existing member, capped at
// the per-member limit.
func (g *Graph) AddCastReference(ctx context.Context, projectID, castID, imagePath, imageRole string) error {
	return g.store.WithProjectLock(projectID, func() error {
		st, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		member := st.FindCast(castID)
		if member == nil {
			return apperr.NotFound("cast %s not found", castID)
		}
		if len(member.ReferenceImages) >= models.MaxReferenceImages {
			return apperr.Validation("cast %s already has %d reference images", castID, models.MaxReferenceImages)
		}
		localURL := g.paths.ToURL(imagePath)
		externalURL, err := g.orch.UploadLocalRef(ctx, st, localURL, nil)
		if err != nil {
			externalURL = ""
		}
		member.ReferenceImages = append(member.ReferenceImages, models.ReferenceImage{
			URLLocal:    localURL,
			URLExternal: externalURL,
			Role:        imageRole,
		})
		return g.store.SaveLocked(st, true, false)
	})
}

// CastPatch carries optional field updates for a cast member.
type CastPatch struct {
	Name        *string
	Role        *models.Role
	Impact      *float64
	PromptExtra *string
}

// UpdateCast applies a partial update.
func (g *Graph) UpdateCast(projectID, castID string, patch CastPatch) error {
	return g.store.WithProjectLock(projectID, func() error {
		st, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		member := st.FindCast(castID)
		if member == nil {
			return apperr.NotFound("cast %s not found", castID)
		}
		if patch.Name != nil && *patch.Name != "" {
			member.Name = *patch.Name
		}
		if patch.Role != nil {
			switch *patch.Role {
			case models.RoleLead, models.RoleSupporting, models.RoleExtra:
				member.Role = *patch.Role
			default:
				return apperr.Validation("invalid role %q", *patch.Role)
			}
		}
		if patch.Impact != nil {
			if *patch.Impact < 0 || *patch.Impact > 1 {
				return apperr.Validation("impact %.2f out of [0,1]", *patch.Impact)
			}
			member.Impact = *patch.Impact
		}
		if patch.PromptExtra != nil {
			member.PromptExtra = *patch.PromptExtra
		}
		return g.store.SaveLocked(st, true, false)
	})
}

// DeleteCast removes a member along with its character refs and strips the
// dangling cast references from every sequence and shot.
func (g *Graph) DeleteCast(projectID, castID string) error {
	return g.store.WithProjectLock(projectID, func() error {
		st, err := g.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		idx := -1
		for i, c := range st.Cast {
			if c.CastID == castID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.NotFound("cast %s not found", castID)
		}
		st.Cast = append(st.Cast[:idx], st.Cast[idx+1:]...)
		delete(st.CastMatrix.CharacterRefs, castID)

		for i := range st.Storyboard.Sequences {
			st.Storyboard.Sequences[i].Cast = removeID(st.Storyboard.Sequences[i].Cast, castID)
		}
		for i := range st.Storyboard.Shots {
			sh := &st.Storyboard.Shots[i]
			sh.Cast = removeID(sh.Cast, castID)
			delete(sh.Wardrobe, castID)
		}
		return g.store.SaveLocked(st, true, false)
	})
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
