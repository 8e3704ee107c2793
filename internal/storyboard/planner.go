package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/bobarin/muvi/internal/apperr"
	"github.com/bobarin/muvi/internal/castmatrix"
	"github.com/bobarin/muvi/internal/costs"
	"github.com/bobarin/muvi/internal/debuglog"
	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/services"
	"github.com/bobarin/muvi/internal/state"
	"github.com/bobarin/muvi/internal/styles"
)

// LLMFactory resolves an llm preference into a provider.
type LLMFactory func(preference string) (services.LLMProvider, error)

type Planner struct {
	store   *state.Store
	session *costs.Session
	pricing *costs.Pricing
	debug   *debuglog.Logger
	llm     LLMFactory
}

func NewPlanner(store *state.Store, session *costs.Session, pricing *costs.Pricing, debug *debuglog.Logger, llm LLMFactory) *Planner {
	return &Planner{store: store, session: session, pricing: pricing, debug: debug, llm: llm}
}

// ---------------------------------------------------------------------------
// Sequence build
// ---------------------------------------------------------------------------

const sequenceSystemPrompt = `You are a music video director planning the narrative
structure of a video against a real audio timeline. You answer with a single
JSON object and nothing else.`

type sequenceGenResponse struct {
	StorySummary string `json:"story_summary"`
	Sequences    []struct {
		Label            string   `json:"label"`
		Start            float64  `json:"start"`
		End              float64  `json:"end"`
		StructureType    string   `json:"structure_type"`
		Energy           float64  `json:"energy"`
		Cast             []string `json:"cast"`
		Description      string   `json:"description"`
		ArcStart         string   `json:"arc_start"`
		ArcEnd           string   `json:"arc_end"`
		LyricsReference  string   `json:"lyrics_reference"`
		StartFramePrompt string   `json:"start_frame_prompt"`
		EndFramePrompt   string   `json:"end_frame_prompt"`
	} `json:"sequences"`
}

// BuildSequences runs one LLM call that turns the audio DNA into the story
// summary plus a contiguous sequence list covering [0, duration], then cleans
// and caps the result against the audio bound.
func (p *Planner) BuildSequences(ctx context.Context, projectID, llmPreference string) (*models.Storyboard, error) {
	st, err := p.store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if st.AudioDNA == nil || st.AudioDNA.Meta.DurationSec <= 0 {
		return nil, apperr.Validation("project has no analyzed audio")
	}
	if llmPreference == "" {
		llmPreference = st.Project.LLMPreference
	}
	provider, err := p.llm(llmPreference)
	if err != nil {
		return nil, err
	}

	duration := st.AudioDNA.Meta.DurationSec
	seqCount, targetShots := TargetCounts(duration)
	user := p.buildSequencePrompt(st, seqCount, targetShots)

	raw, err := provider.CompleteJSON(ctx, sequenceSystemPrompt, user)
	p.debug.Write(st, debuglog.Entry{
		Kind:     "llm",
		Label:    "build_sequences",
		Model:    provider.Model(),
		Request:  user,
		Response: raw,
		Error:    errString(err),
	})
	if err != nil {
		return nil, fmt.Errorf("sequence generation failed: %w", err)
	}
	call := p.session.TrackCall("llm_"+provider.Name(), p.pricing.Price("llm_"+provider.Name()), "build_sequences")

	var parsed sequenceGenResponse
	if err := json.Unmarshal([]byte(services.StripJSONFences(raw)), &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindBackendPermanent, err, "sequence generation returned unusable JSON")
	}
	if len(parsed.Sequences) == 0 {
		return nil, apperr.New(apperr.KindBackendPermanent, "sequence generation returned no sequences")
	}

	// Clean: coerce to schema, reject unknown cast, normalize structure,
	// clamp energy. Then cap count and duration — hard limits.
	validCast := map[string]bool{}
	for _, c := range st.Cast {
		validCast[c.CastID] = true
	}
	if len(parsed.Sequences) > seqCount {
		log.Printf("[Storyboard] Model produced %d sequences, capping to %d", len(parsed.Sequences), seqCount)
		parsed.Sequences = parsed.Sequences[:seqCount]
	}

	seqs := make([]models.Sequence, 0, len(parsed.Sequences))
	for i, rs := range parsed.Sequences {
		seq := models.Sequence{
			SequenceID:       SequenceID(i),
			Label:            rs.Label,
			Start:            round2(rs.Start),
			End:              round2(rs.End),
			StructureType:    NormalizeStructureType(rs.StructureType),
			Energy:           Clamp01(rs.Energy),
			Description:      rs.Description,
			ArcStart:         rs.ArcStart,
			ArcEnd:           rs.ArcEnd,
			LyricsReference:  rs.LyricsReference,
			StartFramePrompt: rs.StartFramePrompt,
			EndFramePrompt:   rs.EndFramePrompt,
		}
		for _, id := range rs.Cast {
			if validCast[id] {
				seq.Cast = append(seq.Cast, id)
			}
		}
		seqs = append(seqs, seq)
	}
	seqs = CapSequences(seqs, duration)

	// Force contiguity: first starts at 0, each start meets the prior end.
	if len(seqs) > 0 {
		seqs[0].Start = 0
		for i := 1; i < len(seqs); i++ {
			seqs[i].Start = seqs[i-1].End
		}
		seqs[len(seqs)-1].End = duration
	}

	var board *models.Storyboard
	err = p.store.WithProjectLock(projectID, func() error {
		fresh, err := p.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		fresh.Storyboard.StorySummary = parsed.StorySummary
		fresh.Storyboard.Sequences = seqs
		fresh.Storyboard.Shots = nil // a new sequence plan invalidates old shots
		fresh.Costs.Add(call)
		if err := p.store.SaveLocked(fresh, true, false); err != nil {
			return err
		}
		copied := fresh.Storyboard
		board = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

func (p *Planner) buildSequencePrompt(st *models.State, seqCount, targetShots int) string {
	preset := styles.Get(st.Project.StylePreset)
	dna := st.AudioDNA

	var sb strings.Builder
	fmt.Fprintf(&sb, "Visual style: %s — %s\nStyle notes: %s\n\n", preset.Name, preset.Tokens, preset.Notes)
	fmt.Fprintf(&sb, "Audio: %.1f seconds, %.0f BPM (%d bars).\n", dna.Meta.DurationSec, dna.Meta.BPM, beatGridBars(dna))
	if dna.Style != "" || dna.Mood != "" {
		fmt.Fprintf(&sb, "Sound: %s, mood: %s, delivery: %s.\n", dna.Style, dna.Mood, dna.Delivery)
	}
	if dna.Story != "" {
		fmt.Fprintf(&sb, "Song story: %s\n", dna.Story)
	}
	if len(dna.Sections) > 0 {
		sb.WriteString("Song structure:\n")
		for _, s := range dna.Sections {
			fmt.Fprintf(&sb, "- %s: %.1f-%.1fs\n", s.Type, s.Start, s.End)
		}
	}
	if len(dna.Lyrics) > 0 {
		sb.WriteString("Lyrics:\n")
		for _, l := range dna.Lyrics {
			fmt.Fprintf(&sb, "  %s\n", l.Text)
		}
	}
	if len(st.Cast) > 0 {
		sb.WriteString("\nCast roster (reference by cast_id only):\n")
		for _, line := range castmatrix.Roster(st.Cast) {
			fmt.Fprintf(&sb, "- %s (%q, %s): %s\n", line.CastID, line.Name, line.Role, line.Usage)
		}
	}

	fmt.Fprintf(&sb, `
Plan exactly %d sequences that together cover 0.0 to %.1f seconds with no gaps
and no overlaps, aimed at roughly %d total shots downstream. Align boundaries
to the song structure where possible.

Return {"story_summary": string, "sequences": [{"label","start","end",
"structure_type","energy","cast","description","arc_start","arc_end",
"lyrics_reference","start_frame_prompt","end_frame_prompt"}]}.
structure_type is one of intro|verse|prechorus|chorus|bridge|breakdown|outro|instrumental.
energy is 0..1. cast is an array of cast_id strings.`,
		seqCount, dna.Meta.DurationSec, targetShots)
	return sb.String()
}

func beatGridBars(dna *models.AudioDNA) int {
	if dna.BeatGrid == nil {
		return 0
	}
	return dna.BeatGrid.TotalBars
}

// ---------------------------------------------------------------------------
// Shot expansion
// ---------------------------------------------------------------------------

const shotSystemPrompt = `You are a music video director breaking a sequence
into individual shots on a real audio timeline. You answer with a single JSON
object and nothing else.`

type shotGenResponse struct {
	Shots []struct {
		Start            float64           `json:"start"`
		End              float64           `json:"end"`
		Cast             []string          `json:"cast"`
		Wardrobe         map[string]string `json:"wardrobe"`
		Intent           string            `json:"intent"`
		CameraLanguage   string            `json:"camera_language"`
		Environment      string            `json:"environment"`
		SymbolicElements []string          `json:"symbolic_elements"`
		PromptBase       string            `json:"prompt_base"`
	} `json:"shots"`
}

// ExpandAll expands every sequence into shots, in order.
func (p *Planner) ExpandAll(ctx context.Context, projectID, llmPreference string) (int, error) {
	st, err := p.store.Load(ctx, projectID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, seq := range st.Storyboard.Sequences {
		n, err := p.ExpandSequence(ctx, projectID, seq.SequenceID, llmPreference)
		if err != nil {
			return total, fmt.Errorf("expansion of %s failed: %w", seq.SequenceID, err)
		}
		total += n
	}
	return total, nil
}

// ExpandSequence asks the LLM for 5-8 shots covering one sequence and stores
// them in start order, replacing the sequence's previous shots. Cast names
// used in place of IDs are resolved; unresolved references are dropped.
func (p *Planner) ExpandSequence(ctx context.Context, projectID, sequenceID, llmPreference string) (int, error) {
	st, err := p.store.Load(ctx, projectID)
	if err != nil {
		return 0, err
	}
	seq := st.FindSequence(sequenceID)
	if seq == nil {
		return 0, apperr.NotFound("sequence %s not found", sequenceID)
	}
	if llmPreference == "" {
		llmPreference = st.Project.LLMPreference
	}
	provider, err := p.llm(llmPreference)
	if err != nil {
		return 0, err
	}

	user := p.buildShotPrompt(st, seq)
	raw, err := provider.CompleteJSON(ctx, shotSystemPrompt, user)
	p.debug.Write(st, debuglog.Entry{
		Kind:     "llm",
		Label:    "expand_" + sequenceID,
		Model:    provider.Model(),
		Request:  user,
		Response: raw,
		Error:    errString(err),
	})
	if err != nil {
		return 0, fmt.Errorf("shot generation failed: %w", err)
	}
	call := p.session.TrackCall("llm_"+provider.Name(), p.pricing.Price("llm_"+provider.Name()), "expand_shots")

	var parsed shotGenResponse
	if err := json.Unmarshal([]byte(services.StripJSONFences(raw)), &parsed); err != nil {
		return 0, apperr.Wrap(apperr.KindBackendPermanent, err, "shot generation returned unusable JSON")
	}
	if len(parsed.Shots) == 0 {
		return 0, apperr.New(apperr.KindBackendPermanent, "shot generation returned no shots")
	}

	resolve := castResolver(st.Cast)
	shots := make([]models.Shot, 0, len(parsed.Shots))
	for _, rsh := range parsed.Shots {
		shot := models.Shot{
			SequenceID:       sequenceID,
			Start:            round2(rsh.Start),
			End:              round2(rsh.End),
			StructureType:    seq.StructureType,
			Energy:           seq.Energy,
			Intent:           rsh.Intent,
			CameraLanguage:   rsh.CameraLanguage,
			Environment:      rsh.Environment,
			SymbolicElements: rsh.SymbolicElements,
			PromptBase:       rsh.PromptBase,
		}
		seen := map[string]bool{}
		for _, ref := range rsh.Cast {
			if id, ok := resolve(ref); ok && !seen[id] {
				shot.Cast = append(shot.Cast, id)
				seen[id] = true
			}
		}
		if len(rsh.Wardrobe) > 0 {
			shot.Wardrobe = map[string]string{}
			for ref, outfit := range rsh.Wardrobe {
				if id, ok := resolve(ref); ok {
					shot.Wardrobe[id] = outfit
				}
			}
		}
		if dur := shot.End - shot.Start; dur > 5.0 {
			// Overruns are warned, not truncated — truncating would open a gap.
			log.Printf("[Storyboard] Shot in %s runs %.1fs (over the 5s guidance)", sequenceID, dur)
		}
		shots = append(shots, shot)
	}

	sort.SliceStable(shots, func(i, j int) bool { return shots[i].Start < shots[j].Start })
	for i := range shots {
		shots[i].ShotID = ShotID(sequenceID, i)
		shots[i].Render = models.Render{Status: models.RenderStatusNone}
	}

	err = p.store.WithProjectLock(projectID, func() error {
		fresh, err := p.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		if fresh.FindSequence(sequenceID) == nil {
			return apperr.NotFound("sequence %s disappeared during expansion", sequenceID)
		}
		kept := make([]models.Shot, 0, len(fresh.Storyboard.Shots))
		for _, sh := range fresh.Storyboard.Shots {
			if sh.SequenceID != sequenceID {
				kept = append(kept, sh)
			}
		}
		// Keep the global shot list in sequence order.
		var rebuilt []models.Shot
		for _, s := range fresh.Storyboard.Sequences {
			if s.SequenceID == sequenceID {
				rebuilt = append(rebuilt, shots...)
				continue
			}
			for _, sh := range kept {
				if sh.SequenceID == s.SequenceID {
					rebuilt = append(rebuilt, sh)
				}
			}
		}
		fresh.Storyboard.Shots = rebuilt
		fresh.Costs.Add(call)
		return p.store.SaveLocked(fresh, true, false)
	})
	if err != nil {
		return 0, err
	}
	return len(shots), nil
}

func (p *Planner) buildShotPrompt(st *models.State, seq *models.Sequence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sequence %s (%s), %.2f to %.2f seconds, energy %.2f.\n",
		seq.SequenceID, seq.StructureType, seq.Start, seq.End, seq.Energy)
	fmt.Fprintf(&sb, "Narrative: %s\nArc: %s → %s\n", seq.Description, seq.ArcStart, seq.ArcEnd)
	if seq.LyricsReference != "" {
		fmt.Fprintf(&sb, "Lyrics in play: %s\n", seq.LyricsReference)
	}
	if len(seq.Cast) > 0 {
		sb.WriteString("Cast available in this sequence (reference by cast_id):\n")
		for _, id := range seq.Cast {
			if c := st.FindCast(id); c != nil {
				fmt.Fprintf(&sb, "- %s (%q, %s)\n", c.CastID, c.Name, c.Role)
			}
		}
	}
	fmt.Fprintf(&sb, `
Break this sequence into 5-8 shots of roughly 2-5 seconds each. Shots must
cover %.2f to %.2f exactly: the first starts at %.2f, the last ends at %.2f,
each shot starts where the previous ended. No gaps, no overlaps.

Return {"shots":[{"start","end","cast","wardrobe","intent","camera_language",
"environment","symbolic_elements","prompt_base"}]}.
"wardrobe" is an object keyed by cast_id with outfit descriptions.
"prompt_base" is the core visual description of the frame.`,
		seq.Start, seq.End, seq.Start, seq.End)
	return sb.String()
}

// castResolver builds a tolerant (lowercased name | id) → cast_id lookup.
func castResolver(cast []models.CastMember) func(string) (string, bool) {
	byKey := map[string]string{}
	for _, c := range cast {
		byKey[strings.ToLower(c.CastID)] = c.CastID
		if c.Name != "" {
			byKey[strings.ToLower(c.Name)] = c.CastID
		}
	}
	return func(ref string) (string, bool) {
		id, ok := byKey[strings.ToLower(strings.TrimSpace(ref))]
		return id, ok
	}
}

// ---------------------------------------------------------------------------
// Tighten / Repair entry points
// ---------------------------------------------------------------------------

// TightenShots closes sub-threshold gaps across the whole storyboard.
func (p *Planner) TightenShots(projectID string) (int, error) {
	adjusted := 0
	err := p.store.WithProjectLock(projectID, func() error {
		st, err := p.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		adjusted = Tighten(st)
		if adjusted == 0 {
			return nil
		}
		return p.store.SaveLocked(st, true, false)
	})
	return adjusted, err
}

// RepairTimeline enforces the audio bound and reports what changed.
func (p *Planner) RepairTimeline(projectID string) (RepairReport, error) {
	var report RepairReport
	err := p.store.WithProjectLock(projectID, func() error {
		st, err := p.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		report = Repair(st)
		if report == (RepairReport{}) {
			return nil
		}
		return p.store.SaveLocked(st, true, false)
	})
	return report, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
