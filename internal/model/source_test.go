package model

import "testing"

func TestDisambiguateAppendsSuffixToCollisions(t *testing.T) {
	sources := []Source{
		{Id: "notes", Path: "/a/notes"},
		{Id: "notes", Path: "/b/notes"},
		{Id: "notes", Path: "/c/notes"},
		{Id: "photos", Path: "/photos"},
	}

	got := Disambiguate(sources)

	want := []string{"notes", "notes~2", "notes~3", "photos"}
	for i, w := range want {
		if got[i].Id != w {
			t.Fatalf("source %d: id = %q, want %q", i, got[i].Id, w)
		}
	}

	// Original paths are preserved; only the id changes.
	for i := range sources {
		if got[i].Path != sources[i].Path {
			t.Fatalf("source %d: path = %q, want %q", i, got[i].Path, sources[i].Path)
		}
	}
}

func TestDisambiguateNoCollisionsUnchanged(t *testing.T) {
	sources := []Source{
		{Id: "a", Path: "/a"},
		{Id: "b", Path: "/b"},
	}
	got := Disambiguate(sources)
	for i := range sources {
		if got[i].Id != sources[i].Id {
			t.Fatalf("source %d: id changed to %q unexpectedly", i, got[i].Id)
		}
	}
}

func TestSourceLess(t *testing.T) {
	a := Source{Id: "a", Path: "/z"}
	b := Source{Id: "b", Path: "/a"}
	if !a.Less(b) {
		t.Fatalf("expected a < b by id")
	}
	if b.Less(a) {
		t.Fatalf("expected b not < a")
	}

	same1 := Source{Id: "x", Path: "/1"}
	same2 := Source{Id: "x", Path: "/2"}
	if !same1.Less(same2) {
		t.Fatalf("expected same1 < same2 by path when ids tie")
	}
}
