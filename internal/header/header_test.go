package header

import (
	"bytes"
	"testing"

	"backy/internal/model"
)

func TestHeaderSizeExactness(t *testing.T) {
	sources := []model.Source{
		{Id: "alpha", IsFile: false, Path: "/a"},
		{Id: "beta", IsFile: false, Path: "/b"},
		{Id: "gamma", IsFile: true, Path: "/c"},
	}
	entries := map[string][]model.EntryPath{
		"alpha": {"x.txt", "y/z.txt"},
		"beta":  {"only.bin"},
		"gamma": {""},
	}

	b := NewBuilder(sources, entries, Flags{IsSingleSource: false})
	for source, paths := range entries {
		var s model.Source
		for _, cand := range sources {
			if cand.Id == source {
				s = cand
			}
		}
		for _, p := range paths {
			if err := b.SetEntry(s, p, uint64(len(p)), [32]byte{1, 2, 3}); err != nil {
				t.Fatalf("SetEntry(%s, %s): %v", source, p, err)
			}
		}
	}

	want := b.Size()
	var buf bytes.Buffer
	written, err := b.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if uint64(written) != want {
		t.Fatalf("written %d bytes, Size() reported %d", written, want)
	}
	if uint64(buf.Len()) != want {
		t.Fatalf("buffer holds %d bytes, want %d", buf.Len(), want)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	sources := []model.Source{
		{Id: "s1", Path: "/s1"},
		{Id: "s2", Path: "/s2"},
		{Id: "s3", Path: "/s3"},
	}
	entries := map[string][]model.EntryPath{
		"s1": {"a", "b"},
		"s2": {"c"},
		"s3": {"d", "e", "f"},
	}

	b := NewBuilder(sources, entries, Flags{IsSingleSource: true})

	hashes := map[model.EntryPath][32]byte{
		"a": {0xAA}, "b": {0xBB}, "c": {0xCC},
		"d": {0xDD}, "e": {0xEE}, "f": {0xFF},
	}
	sizes := map[model.EntryPath]uint64{
		"a": 10, "b": 20, "c": 30, "d": 5, "e": 6, "f": 7,
	}

	for id, paths := range entries {
		var s model.Source
		for _, cand := range sources {
			if cand.Id == id {
				s = cand
			}
		}
		for _, p := range paths {
			if err := b.SetEntry(s, p, sizes[p], hashes[p]); err != nil {
				t.Fatalf("SetEntry: %v", err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	parsed, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !parsed.Flags.IsSingleSource {
		t.Fatalf("expected IsSingleSource flag to round-trip true")
	}
	if len(parsed.Entries) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(parsed.Entries))
	}
	for id, paths := range entries {
		got := parsed.Entries[id]
		if len(got) != len(paths) {
			t.Fatalf("source %s: got %d entries, want %d", id, len(got), len(paths))
		}
		for _, e := range got {
			if e.Hash != hashes[e.Path] {
				t.Fatalf("source %s path %s: hash mismatch", id, e.Path)
			}
			if e.Size != sizes[e.Path] {
				t.Fatalf("source %s path %s: size mismatch, got %d want %d", id, e.Path, e.Size, sizes[e.Path])
			}
		}
	}
}

func TestPrefixSumOffsets(t *testing.T) {
	sources := []model.Source{{Id: "only", Path: "/only"}}
	entries := map[string][]model.EntryPath{"only": {"a", "b", "c"}}
	b := NewBuilder(sources, entries, Flags{})

	sizes := map[model.EntryPath]uint64{"a": 100, "b": 50, "c": 25}
	for _, p := range entries["only"] {
		if err := b.SetEntry(sources[0], p, sizes[p], [32]byte{}); err != nil {
			t.Fatalf("SetEntry: %v", err)
		}
	}

	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	parsed, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}

	var expected uint64
	for _, e := range parsed.Entries["only"] {
		if e.Position != expected {
			t.Fatalf("entry %s: position %d, want %d", e.Path, e.Position, expected)
		}
		expected += e.Size
	}
}

func TestSetEntryTwiceIsInvariantViolation(t *testing.T) {
	sources := []model.Source{{Id: "s", Path: "/s"}}
	entries := map[string][]model.EntryPath{"s": {"a"}}
	b := NewBuilder(sources, entries, Flags{})

	if err := b.SetEntry(sources[0], "a", 1, [32]byte{}); err != nil {
		t.Fatalf("first SetEntry: %v", err)
	}
	if err := b.SetEntry(sources[0], "a", 1, [32]byte{}); err == nil {
		t.Fatalf("expected error setting the same entry twice")
	}
}

func TestReadFromRejectsImplausibleLength(t *testing.T) {
	// flags + source_count=1, then an id_length far beyond any real header.
	buf := []byte{
		0, 0, 0, 0, // flags
		1, 0, 0, 0, // source_count
		0xff, 0xff, 0xff, 0x7f, // id_length: huge
	}
	if _, err := ReadFrom(bytes.NewReader(buf)); err == nil {
		t.Fatalf("expected ReadFrom to reject an implausible length")
	}
}
