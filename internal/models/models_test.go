package models

import (
	"encoding/json"
	"testing"
)

func TestValidAspect(t *testing.T) {
	for _, a := range []Aspect{AspectHorizontal, AspectVertical, AspectSquare} {
		if !ValidAspect(a) {
			t.Errorf("expected %q to be valid", a)
		}
	}
	if ValidAspect("portrait") {
		t.Error("expected unknown aspect to be invalid")
	}
}

func TestAspectRatio(t *testing.T) {
	cases := map[Aspect]string{
		AspectHorizontal: "16:9",
		AspectVertical:   "9:16",
		AspectSquare:     "1:1",
	}
	for aspect, want := range cases {
		if got := aspect.AspectRatio(); got != want {
			t.Errorf("aspect %q: expected %q, got %q", aspect, want, got)
		}
	}
}

func TestLockRenderModels(t *testing.T) {
	rm := LockRenderModels(ImageModelSeedream45)
	if rm.ImageModel != ImageModelSeedream45 {
		t.Errorf("expected seedream45, got %q", rm.ImageModel)
	}
	if rm.EditorKey != "seedream45_edit" {
		t.Errorf("expected seedream45_edit, got %q", rm.EditorKey)
	}

	// Unknown choices fall back to nanobanana.
	rm = LockRenderModels("midjourney")
	if rm.ImageModel != ImageModelNanobanana {
		t.Errorf("expected fallback to nanobanana, got %q", rm.ImageModel)
	}
}

func TestValidStructureType(t *testing.T) {
	valid := []StructureType{
		StructureIntro, StructureVerse, StructurePrechorus, StructureChorus,
		StructureBridge, StructureBreakdown, StructureOutro, StructureInstrumental,
	}
	for _, s := range valid {
		if !ValidStructureType(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if ValidStructureType("drop") {
		t.Error("expected unknown structure type to be invalid")
	}
}

func TestRoleSortWeight(t *testing.T) {
	if !(RoleLead.SortWeight() < RoleSupporting.SortWeight() &&
		RoleSupporting.SortWeight() < RoleExtra.SortWeight()) {
		t.Error("expected lead < supporting < extra")
	}
}

func TestCostLedgerAdd(t *testing.T) {
	var l CostLedger
	l.Add(CostCall{Model: "nanobanana", Cost: 0.039})
	l.Add(CostCall{Model: "llm_openai", Cost: 0.01})

	if len(l.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(l.Calls))
	}
	sum := 0.0
	for _, c := range l.Calls {
		sum += c.Cost
	}
	if diff := l.Total - sum; diff > 0.0001 || diff < -0.0001 {
		t.Errorf("total %.6f does not match sum %.6f", l.Total, sum)
	}
}

func TestStateLookups(t *testing.T) {
	st := State{
		Cast: []CastMember{{CastID: "lead_1", Name: "Ava", Role: RoleLead}},
		Storyboard: Storyboard{
			Sequences: []Sequence{{SequenceID: "seq_01", Start: 0, End: 10}},
			Shots: []Shot{
				{ShotID: "seq_01_sh01", SequenceID: "seq_01", Start: 0, End: 5},
				{ShotID: "seq_01_sh02", SequenceID: "seq_01", Start: 5, End: 10},
			},
		},
	}

	if st.FindCast("lead_1") == nil {
		t.Error("expected to find lead_1")
	}
	if st.FindCast("lead_2") != nil {
		t.Error("expected lead_2 to be absent")
	}
	if st.FindSequence("seq_01") == nil {
		t.Error("expected to find seq_01")
	}
	if got := len(st.ShotsForSequence("seq_01")); got != 2 {
		t.Errorf("expected 2 shots, got %d", got)
	}

	// Lookup results are pointers into the document.
	st.FindShot("seq_01_sh01").Render.Status = RenderStatusDone
	if st.Storyboard.Shots[0].Render.Status != RenderStatusDone {
		t.Error("expected FindShot to return a live pointer")
	}
}

func TestStateRoundTrip(t *testing.T) {
	st := State{
		Project: Project{
			ID:             "p1",
			Title:          "Night Drive",
			Aspect:         AspectVertical,
			RenderModels:   LockRenderModels(ImageModelFlux2),
			FALUploadCache: map[string]string{"/files/a.png": "https://cdn.example/a.png"},
		},
		AudioDNA: &AudioDNA{Meta: AudioMeta{DurationSec: 182.5, BPM: 120}},
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var back State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Project.Title != "Night Drive" || back.AudioDNA.Meta.DurationSec != 182.5 {
		t.Error("round trip lost data")
	}
	if back.Project.FALUploadCache["/files/a.png"] != "https://cdn.example/a.png" {
		t.Error("round trip lost upload cache")
	}
}
