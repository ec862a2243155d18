package cel

import "testing"

func TestRegistryAddGetRemove(t *testing.T) {
	var r registry
	a, b := NewGroup("a"), NewGroup("b")
	ha, hb := r.add(a), r.add(b)
	if r.get(ha) != a || r.get(hb) != b {
		t.Fatal("get did not return the registered boxes")
	}
	if r.len() != 2 {
		t.Errorf("len = %d, want 2", r.len())
	}

	r.remove(ha)
	if r.get(ha) != nil {
		t.Error("removed handle still resolves")
	}
	r.remove(ha) // second remove is a no-op
	if r.len() != 1 {
		t.Errorf("len = %d, want 1", r.len())
	}
}

func TestRegistryReusedSlotRejectsStaleHandle(t *testing.T) {
	var r registry
	old := r.add(NewGroup("old"))
	r.remove(old)
	c := NewGroup("new")
	h := r.add(c)
	if h.index != old.index {
		t.Fatalf("slot not reused: %d vs %d", h.index, old.index)
	}
	if r.get(old) != nil {
		t.Error("stale handle resolved to the slot's new box")
	}
	if r.get(h) != c {
		t.Error("new handle does not resolve")
	}
}

func TestZeroHandle(t *testing.T) {
	var r registry
	r.add(NewGroup("a"))
	var h Handle
	if !h.IsZero() {
		t.Error("zero Handle should report IsZero")
	}
	if r.get(h) != nil {
		t.Error("zero handle resolved to a box")
	}
	if r.get(Handle{index: 99, gen: 1}) != nil {
		t.Error("out-of-range handle resolved to a box")
	}
}
