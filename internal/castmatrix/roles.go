// Package castmatrix maintains the identity and reference graph: cast
// members, their canonical stylized refs, per-sequence decor plates, wardrobe
// previews, and the style lock that keeps all of them visually coherent.
package castmatrix

import (
	"sort"

	"github.com/bobarin/muvi/internal/models"
)

// Presence tags lead every usage string so the planner prompt can shout the
// hierarchy at the model.
const (
	usagePrimary       = "PRIMARY PROTAGONIST — the main character, present in 80%+ of shots"
	usageCoLead        = "CO-LEAD — shares focus with the protagonist, present in 60%+ of shots"
	usageCoLeadMinor   = "CO-LEAD — secondary lead, featured in key moments"
	usageMediumSupport = "MEDIUM PRESENCE — appears in about half the shots, interacts with the lead"
	usageLowSupport    = "LOW PRESENCE — occasional appearances"
	usageLowExtra      = "LOW PRESENCE — 5-6 shots, must have a clear purpose"
	usageMinimalExtra  = "MINIMAL PRESENCE — 1-2 shots, must have a clear purpose"
)

// SortCast orders cast for prompts and display: lead < supporting < extra,
// then by descending impact, ties keeping upload order.
func SortCast(cast []models.CastMember) []models.CastMember {
	out := append([]models.CastMember(nil), cast...)
	sort.SliceStable(out, func(i, j int) bool {
		if w1, w2 := out[i].Role.SortWeight(), out[j].Role.SortWeight(); w1 != w2 {
			return w1 < w2
		}
		return out[i].Impact > out[j].Impact
	})
	return out
}

// PrimaryLeadID returns the lead with the highest impact, ties broken by
// cast order. Empty when there is no lead.
func PrimaryLeadID(cast []models.CastMember) string {
	best := ""
	bestImpact := -1.0
	for _, c := range cast {
		if c.Role != models.RoleLead {
			continue
		}
		if c.Impact > bestImpact {
			best = c.CastID
			bestImpact = c.Impact
		}
	}
	return best
}

// UsageSeed maps a cast member's role and impact to the presence instruction
// woven into planner prompts.
func UsageSeed(member models.CastMember, isPrimary bool) string {
	switch member.Role {
	case models.RoleLead:
		if isPrimary {
			return usagePrimary
		}
		if member.Impact >= 0.7 {
			return usageCoLead
		}
		return usageCoLeadMinor
	case models.RoleSupporting:
		if member.Impact >= 0.5 {
			return usageMediumSupport
		}
		return usageLowSupport
	default:
		if member.Impact >= 0.5 {
			return usageLowExtra
		}
		return usageMinimalExtra
	}
}

// RosterLine is one cast entry in the planner prompt roster.
type RosterLine struct {
	CastID string
	Name   string
	Role   models.Role
	Usage  string
}

// Roster builds the sorted, usage-annotated cast roster for prompts.
func Roster(cast []models.CastMember) []RosterLine {
	primary := PrimaryLeadID(cast)
	sorted := SortCast(cast)
	out := make([]RosterLine, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, RosterLine{
			CastID: c.CastID,
			Name:   c.Name,
			Role:   c.Role,
			Usage:  UsageSeed(c, c.CastID == primary),
		})
	}
	return out
}
