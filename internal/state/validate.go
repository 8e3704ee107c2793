package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/models"
)

// gapTolerance is the largest hole between adjacent shots that still counts
// as coverage of the sequence range.
const gapTolerance = 0.1

// Validate checks the document invariants and returns every violation found.
func (s *Store) Validate(st *models.State) []error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	castIDs := map[string]bool{}
	for _, c := range st.Cast {
		castIDs[c.CastID] = true
	}
	seqIDs := map[string]bool{}

	duration := st.DurationSec()

	for _, seq := range st.Storyboard.Sequences {
		seqIDs[seq.SequenceID] = true
		if !models.ValidStructureType(seq.StructureType) {
			add("sequence %s has invalid structure_type %q", seq.SequenceID, seq.StructureType)
		}
		if seq.Energy < 0 || seq.Energy > 1 {
			add("sequence %s energy %.3f out of [0,1]", seq.SequenceID, seq.Energy)
		}
		if seq.Start < 0 || seq.Start >= seq.End {
			add("sequence %s has invalid range [%.2f, %.2f]", seq.SequenceID, seq.Start, seq.End)
		}
		if duration > 0 && seq.End > duration+gapTolerance {
			add("sequence %s end %.2f exceeds audio duration %.2f", seq.SequenceID, seq.End, duration)
		}
		for _, id := range seq.Cast {
			if !castIDs[id] {
				add("sequence %s references unknown cast_id %q", seq.SequenceID, id)
			}
		}
	}

	for _, sh := range st.Storyboard.Shots {
		if !seqIDs[sh.SequenceID] {
			add("shot %s references unknown sequence %q", sh.ShotID, sh.SequenceID)
		}
		if !models.ValidStructureType(sh.StructureType) {
			add("shot %s has invalid structure_type %q", sh.ShotID, sh.StructureType)
		}
		if sh.Energy < 0 || sh.Energy > 1 {
			add("shot %s energy %.3f out of [0,1]", sh.ShotID, sh.Energy)
		}
		for _, id := range sh.Cast {
			if !castIDs[id] {
				add("shot %s references unknown cast_id %q", sh.ShotID, id)
			}
		}
		if sh.Render.Status == models.RenderStatusDone {
			if sh.Render.ImageURL == "" {
				add("shot %s is done but has no image_url", sh.ShotID)
			} else if !s.renderResolves(st, sh.Render.ImageURL) {
				add("shot %s image_url %s does not resolve to a file", sh.ShotID, sh.Render.ImageURL)
			}
		}
	}

	// Shot coverage per sequence: sorted by start, zero gap > tolerance,
	// zero overlap.
	for _, seq := range st.Storyboard.Sequences {
		shots := st.ShotsForSequence(seq.SequenceID)
		if len(shots) == 0 {
			continue
		}
		sorted := append([]*models.Shot(nil), shots...)
		sortShotsByStart(sorted)

		if sorted[0].Start > seq.Start+gapTolerance {
			add("sequence %s has a gap before first shot (%.2f → %.2f)", seq.SequenceID, seq.Start, sorted[0].Start)
		}
		for i := 1; i < len(sorted); i++ {
			prev, cur := sorted[i-1], sorted[i]
			if cur.Start < prev.End-1e-6 {
				add("sequence %s shots %s/%s overlap (%.2f < %.2f)", seq.SequenceID, prev.ShotID, cur.ShotID, cur.Start, prev.End)
			}
			if cur.Start > prev.End+gapTolerance {
				add("sequence %s has a gap between %s and %s (%.2f → %.2f)", seq.SequenceID, prev.ShotID, cur.ShotID, prev.End, cur.Start)
			}
		}
		if last := sorted[len(sorted)-1]; last.End < seq.End-gapTolerance {
			add("sequence %s has a gap after last shot (%.2f → %.2f)", seq.SequenceID, last.End, seq.End)
		}
	}

	if img := st.Project.StyleLockImage; img != "" && !strings.HasPrefix(img, "http") {
		if !s.renderResolves(st, img) {
			add("style_lock_image %s does not resolve to a file", img)
		}
	}

	return errs
}

// ValidateStrict returns a validation error when any invariant is violated.
func (s *Store) ValidateStrict(st *models.State) error {
	errs := s.Validate(st)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return apperr.Validation("state validation failed: %s", strings.Join(msgs, "; "))
}

func (s *Store) renderResolves(st *models.State, url string) bool {
	p, err := s.paths.FromURL(url, st)
	if err != nil {
		return false
	}
	return fileExists(p)
}

func sortShotsByStart(shots []*models.Shot) {
	sort.SliceStable(shots, func(i, j int) bool { return shots[i].Start < shots[j].Start })
}
