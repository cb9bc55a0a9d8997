// Package model holds the small, immutable value types shared across
// backy's core pipeline: sources, relative entry paths, index entries, and
// groups.
package model

import "strconv"

// Source is a user-supplied root: a single file or a directory tree,
// identified by the stable basename of its canonical path. Sources are
// immutable after construction and compare by Id then Path.
type Source struct {
	Id     string
	IsFile bool
	Path   string
}

// Less orders sources by Id then Path, giving the total order header
// serialization and group iteration rely on.
func (s Source) Less(other Source) bool {
	if s.Id != other.Id {
		return s.Id < other.Id
	}
	return s.Path < other.Path
}

// Disambiguate appends "~N" to id for the Nth (N>=2) source sharing a
// basename, raising N past any id already in use, keeping every source's
// id unique.
func Disambiguate(sources []Source) []Source {
	seen := make(map[string]int, len(sources))
	taken := make(map[string]bool, len(sources))
	for _, s := range sources {
		taken[s.Id] = true
	}
	out := make([]Source, len(sources))
	for i, s := range sources {
		seen[s.Id]++
		if n := seen[s.Id]; n > 1 {
			for taken[suffixed(s.Id, n)] {
				n++
			}
			s.Id = suffixed(s.Id, n)
			taken[s.Id] = true
		}
		out[i] = s
	}
	return out
}

func suffixed(id string, n int) string {
	return id + "~" + strconv.Itoa(n)
}
