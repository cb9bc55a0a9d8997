// Package group implements the bin-packer: a deterministic, greedy
// largest-entry-first / first-fit-decreasing grouping of index entries
// under a size cap. The shape mirrors the original Rust create_groups
// (original_source/src/group.rs) translated into the teacher's preferred
// slice-of-structs style.
package group

import (
	"sort"

	"backy/internal/model"
)

// Create groups entries so that every group's cumulative size is at most
// maxGroupSize, except a single entry that itself exceeds maxGroupSize,
// which forms its own oversized group. The result is a pure, deterministic
// function of entries and maxGroupSize.
func Create(entries []model.IndexEntry, maxGroupSize uint64) []model.Group {
	sorted := append([]model.IndexEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })

	var groups []model.Group

	for _, e := range sorted {
		ge := model.GroupEntry{Source: e.Source, Path: e.Path, Size: e.Size}

		pos := firstFit(groups, e.Size, maxGroupSize)
		if pos == -1 {
			groups = append(groups, model.Group{Size: e.Size, Entries: []model.GroupEntry{ge}})
			continue
		}

		groups[pos].Size += e.Size
		groups[pos].Entries = append(groups[pos].Entries, ge)

		if pos == 0 || groups[pos-1].Size >= groups[pos].Size {
			continue
		}

		reinsert(&groups, pos)
	}

	return groups
}

// firstFit scans groups from the largest (index 0) for the first whose
// residual capacity fits size, returning -1 if none fits.
func firstFit(groups []model.Group, size, maxGroupSize uint64) int {
	for i, g := range groups {
		if g.Size+size <= maxGroupSize {
			return i
		}
	}
	return -1
}

// reinsert moves the group at pos to the position that preserves
// descending-by-size order, via binary search, after an append grew it
// past its predecessor.
func reinsert(groups *[]model.Group, pos int) {
	g := (*groups)[pos]
	rest := append((*groups)[:pos:pos], (*groups)[pos+1:]...)

	insertAt := sort.Search(len(rest), func(i int) bool {
		return rest[i].Size <= g.Size
	})

	out := make([]model.Group, 0, len(rest)+1)
	out = append(out, rest[:insertAt]...)
	out = append(out, g)
	out = append(out, rest[insertAt:]...)
	*groups = out
}
