package devtree

import "testing"

func TestInsertCreatesAncestors(t *testing.T) {
	root := NewRoot()
	leaf := New("xyz", &Device{Kind: Char, ID: DeviceID{Major: 240, Minor: 5}})

	root = Insert("a/b/c", leaf, root)

	a := Lookup("a", root)
	if a == nil {
		t.Fatal("expected anonymous node at 'a'")
	}
	if a.Subsystem != "" || a.Device != nil {
		t.Errorf("ancestor 'a' should be anonymous, got subsystem=%q device=%v", a.Subsystem, a.Device)
	}

	ab := Lookup("a/b", root)
	if ab == nil {
		t.Fatal("expected anonymous node at 'a/b'")
	}
	if ab.Subsystem != "" || ab.Device != nil {
		t.Errorf("ancestor 'a/b' should be anonymous, got subsystem=%q device=%v", ab.Subsystem, ab.Device)
	}

	abc := Lookup("a/b/c", root)
	if abc != leaf {
		t.Errorf("Lookup(a/b/c) = %v, want the inserted leaf", abc)
	}
}

func TestLookupMissing(t *testing.T) {
	root := NewRoot()
	if n := Lookup("missing", root); n != nil {
		t.Errorf("Lookup(missing) = %v, want nil", n)
	}
}

func TestRemove(t *testing.T) {
	root := NewRoot()
	leaf := New("block", &Device{Kind: Block, ID: DeviceID{Major: 7, Minor: 2}})
	root = Insert("a/b", leaf, root)

	root = Remove("a/b", root)
	if n := Lookup("a/b", root); n != nil {
		t.Errorf("Lookup(a/b) after remove = %v, want nil", n)
	}
	// Ancestor 'a' still exists.
	if n := Lookup("a", root); n == nil {
		t.Error("expected 'a' to still exist after removing child 'b'")
	}
}

func TestRemoveUnchangedWhenAbsent(t *testing.T) {
	root := NewRoot()
	root = Insert("a/b", New("", nil), root)
	before := root
	after := Remove("x/y", root)
	if after != before {
		t.Error("Remove of an absent path should return the same root pointer")
	}
}

// TestMovePreservesSubtree exercises law 3 from spec.md §8: after
// move(src, tgt), lookup(tgt) returns what lookup(src) used to return, and
// lookup(src) now returns nil.
func TestMovePreservesSubtree(t *testing.T) {
	root := NewRoot()
	leaf := New("block", &Device{Kind: Block, ID: DeviceID{Major: 7, Minor: 2}})
	root = Insert("a/b", leaf, root)

	newRoot, moved, ok := Move("a/b", "a/c", root)
	if !ok {
		t.Fatal("Move should succeed when source exists")
	}
	if moved != leaf {
		t.Errorf("Move returned %v, want the original leaf", moved)
	}

	if n := Lookup("a/b", newRoot); n != nil {
		t.Errorf("Lookup(a/b) after move = %v, want nil", n)
	}
	if n := Lookup("a/c", newRoot); n != leaf {
		t.Errorf("Lookup(a/c) after move = %v, want original leaf", n)
	}
}

func TestMoveUnrelatedSubtrees(t *testing.T) {
	root := NewRoot()
	leaf := New("block", &Device{Kind: Block, ID: DeviceID{Major: 7, Minor: 2}})
	root = Insert("a/b", leaf, root)

	newRoot, moved, ok := Move("a/b", "x/y", root)
	if !ok {
		t.Fatal("Move across unrelated subtrees should succeed when source exists")
	}
	if moved != leaf {
		t.Error("Move should return the original node")
	}
	if n := Lookup("x/y", newRoot); n != leaf {
		t.Error("Lookup(x/y) should return the moved leaf")
	}
}

func TestMoveMissingSource(t *testing.T) {
	root := NewRoot()
	newRoot, moved, ok := Move("a/b", "x/y", root)
	if ok {
		t.Error("Move should report !ok when source is missing")
	}
	if moved != nil {
		t.Error("Move should not return a node when source is missing")
	}
	if newRoot != root {
		t.Error("Move should leave root unchanged when source is missing")
	}
}

func TestInsertReplacesExistingSubtree(t *testing.T) {
	root := NewRoot()
	first := New("a", &Device{Kind: Char, ID: DeviceID{Major: 1, Minor: 1}})
	root = Insert("p", first, root)

	second := New("b", &Device{Kind: Char, ID: DeviceID{Major: 2, Minor: 2}})
	root = Insert("p", second, root)

	if n := Lookup("p", root); n != second {
		t.Errorf("Lookup(p) = %v, want replacement node", n)
	}
}

// TestAncestorBroadcastersSurviveReplacement checks the invariant from
// spec.md §3: "the broadcast channels attached to a node survive as long as
// the node exists in the tree" even though every structural update produces
// a brand new ancestor value.
func TestAncestorBroadcastersSurviveReplacement(t *testing.T) {
	root := NewRoot()
	root = Insert("a/b", New("", nil), root)
	a1 := Lookup("a", root)

	root = Insert("a/c", New("", nil), root)
	a2 := Lookup("a", root)

	if a1 == a2 {
		t.Fatal("expected a new Node value for 'a' after the second insert")
	}
	if a1.OnRemove != a2.OnRemove {
		t.Error("the OnRemove broadcaster for 'a' should survive across structural replacement")
	}
}
