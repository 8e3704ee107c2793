package styles

import "testing"

func TestGetFallsBack(t *testing.T) {
	p := Get("neon_noir")
	if p.Key != "neon_noir" {
		t.Errorf("expected neon_noir, got %q", p.Key)
	}

	fallback := Get("does_not_exist")
	if fallback.Key != "cinematic" {
		t.Errorf("expected fallback to cinematic, got %q", fallback.Key)
	}
}

func TestListSortedAndComplete(t *testing.T) {
	list := List()
	if len(list) != len(presets) {
		t.Fatalf("expected %d presets, got %d", len(presets), len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Key >= list[i].Key {
			t.Errorf("list not sorted at %d: %q >= %q", i, list[i-1].Key, list[i].Key)
		}
	}
	for _, p := range list {
		if p.Tokens == "" || p.Name == "" {
			t.Errorf("preset %q missing name or tokens", p.Key)
		}
		if !Valid(p.Key) {
			t.Errorf("preset %q not valid by its own key", p.Key)
		}
	}
}
