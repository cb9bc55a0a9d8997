package group

import (
	"testing"

	"backy/internal/model"
)

func entry(id string, size uint64) model.IndexEntry {
	return model.IndexEntry{Source: model.Source{Id: id, Path: "/" + id}, Path: "f", Size: size}
}

func TestCreateRespectsCap(t *testing.T) {
	entries := []model.IndexEntry{
		entry("a", 3 << 30), // 3 GiB
		entry("b", 2 << 30), // 2 GiB
	}
	groups := Create(entries, 4<<30)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups (neither fits with the other), got %d", len(groups))
	}
	for _, g := range groups {
		if g.Size > 4<<30 {
			t.Fatalf("group size %d exceeds cap", g.Size)
		}
	}
}

func TestCreateAllowsSingleOversizedEntry(t *testing.T) {
	entries := []model.IndexEntry{entry("huge", 10 << 20)}
	groups := Create(entries, 1<<20)

	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Entries) != 1 {
		t.Fatalf("expected the oversized entry to form its own group alone")
	}
}

func TestCreateIsDeterministic(t *testing.T) {
	entries := []model.IndexEntry{
		entry("a", 5), entry("b", 3), entry("c", 8), entry("d", 1), entry("e", 4),
	}
	a := Create(append([]model.IndexEntry(nil), entries...), 10)
	b := Create(append([]model.IndexEntry(nil), entries...), 10)

	if len(a) != len(b) {
		t.Fatalf("group count differs between runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Size != b[i].Size || len(a[i].Entries) != len(b[i].Entries) {
			t.Fatalf("group %d differs between runs", i)
		}
		for j := range a[i].Entries {
			if a[i].Entries[j].Source.Id != b[i].Entries[j].Source.Id {
				t.Fatalf("group %d entry %d differs between runs", i, j)
			}
		}
	}
}

func TestCreateBound(t *testing.T) {
	entries := []model.IndexEntry{
		entry("a", 6), entry("b", 5), entry("c", 4), entry("d", 3), entry("e", 2), entry("f", 1),
	}
	maxSize := uint64(10)
	groups := Create(entries, maxSize)

	for _, g := range groups {
		if g.Size > maxSize && len(g.Entries) != 1 {
			t.Fatalf("group exceeds cap (%d > %d) without being a lone oversized entry", g.Size, maxSize)
		}
	}
}
