package pack

import (
	"testing"

	"github.com/spf13/afero"

	"backy/internal/index"
	"backy/internal/model"
)

func TestGroupRefusesToOverwriteExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/src/a", []byte("aaaa"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := afero.WriteFile(fs, "/out.bky", []byte("existing"), 0o644); err != nil {
		t.Fatalf("WriteFile out: %v", err)
	}

	entries, err := index.Create(fs, []model.Source{{Id: "a", IsFile: true, Path: "/src/a"}})
	if err != nil {
		t.Fatalf("index.Create: %v", err)
	}
	g := model.Group{Entries: toGroupEntries(entries), Size: entries[0].Size}

	key := make([]byte, 32)
	if err := Group(fs, "/out.bky", g, key, Options{IsSingleSource: true}); err == nil {
		t.Fatalf("expected Group to refuse to overwrite an existing container")
	}
}

func TestGroupWithTrackerReportsEachEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/src/a", []byte("aaaa"), 0o644); err != nil {
		t.Fatalf("WriteFile a: %v", err)
	}
	if err := afero.WriteFile(fs, "/src/b", []byte("bb"), 0o644); err != nil {
		t.Fatalf("WriteFile b: %v", err)
	}

	entries, err := index.Create(fs, []model.Source{
		{Id: "a", IsFile: true, Path: "/src/a"},
		{Id: "b", IsFile: true, Path: "/src/b"},
	})
	if err != nil {
		t.Fatalf("index.Create: %v", err)
	}

	g := model.Group{Entries: toGroupEntries(entries)}
	for _, e := range entries {
		g.Size += e.Size
	}

	tracker := &recordingTracker{}
	key := make([]byte, 32)
	if err := GroupWithTracker(fs, "/out.bky", g, key, Options{}, tracker); err != nil {
		t.Fatalf("GroupWithTracker: %v", err)
	}

	if tracker.calls != 2 {
		t.Fatalf("expected 2 Advance calls, got %d", tracker.calls)
	}
	if tracker.total != 6 {
		t.Fatalf("expected total advanced bytes 6, got %d", tracker.total)
	}
}

type recordingTracker struct {
	calls int
	total uint64
}

func (r *recordingTracker) Advance(amount uint64) {
	r.calls++
	r.total += amount
}
