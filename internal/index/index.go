// Package index walks a list of sources and produces the flat list of
// index entries the bin-packer and packer consume. Like the teacher's
// directory walks (core/directory_test.go's FileEntry slices), it is
// written against afero.Fs rather than bare os/filepath so the walk itself
// is exercised by in-memory-filesystem tests without touching disk.
package index

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"backy/internal/applog"
	"backy/internal/model"
)

// Create walks every source and returns the flat list of index entries:
// one empty-path entry for a file source, one entry per regular file
// reachable by following symlinks for a directory source.
func Create(fs afero.Fs, sources []model.Source) ([]model.IndexEntry, error) {
	var out []model.IndexEntry

	for _, source := range sources {
		before := len(out)
		var totalSize uint64

		if source.IsFile {
			info, err := fs.Stat(source.Path)
			if err != nil {
				return nil, fmt.Errorf("indexing %s: %w", source.Path, err)
			}
			size := uint64(info.Size())
			totalSize += size
			out = append(out, model.IndexEntry{Source: source, Path: "", Size: size})
		} else {
			w := &walker{fs: fs, source: source, visited: map[string]bool{}}
			entries, size, err := w.walk(source.Path, "")
			if err != nil {
				return nil, fmt.Errorf("indexing %s: %w", source.Path, err)
			}
			out = append(out, entries...)
			totalSize += size
		}

		applog.Infof("indexed %d files under %s (%s)", len(out)-before, source.Path, humanize.Bytes(totalSize))
	}

	return out, nil
}

type walker struct {
	fs      afero.Fs
	source  model.Source
	visited map[string]bool
}

// walk recursively lists dirPath (an absolute path, the source root
// joined with relPath so far), following symlinks. A directory symlink
// that resolves to an already-visited real path is a cycle and fails the
// walk, and the failure propagates straight out of Create.
func (w *walker) walk(dirPath string, relPath string) ([]model.IndexEntry, uint64, error) {
	if err := w.markVisited(dirPath); err != nil {
		return nil, 0, err
	}

	children, err := afero.ReadDir(w.fs, dirPath)
	if err != nil {
		return nil, 0, err
	}

	var out []model.IndexEntry
	var total uint64

	for _, child := range children {
		childRel := path.Join(filepath.ToSlash(relPath), child.Name())
		childAbs := filepath.Join(dirPath, child.Name())

		info := child
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := w.fs.Stat(childAbs)
			if err != nil {
				return nil, 0, fmt.Errorf("resolving symlink %s: %w", childAbs, err)
			}
			info = resolved
		}

		switch {
		case info.IsDir():
			sub, subSize, err := w.walk(childAbs, childRel)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, sub...)
			total += subSize
		case info.Mode().IsRegular():
			size := uint64(info.Size())
			out = append(out, model.IndexEntry{
				Source: w.source,
				Path:   model.EntryPath(childRel),
				Size:   size,
			})
			total += size
		default:
			// devices, sockets, fifos: skipped
		}
	}

	return out, total, nil
}

func (w *walker) markVisited(realDir string) error {
	resolved, err := filepath.EvalSymlinks(realDir)
	if err != nil {
		// Non-OS filesystems (e.g. an in-memory afero.Fs in tests) don't
		// have a meaningful real path; skip cycle tracking for them.
		return nil
	}
	if w.visited[resolved] {
		return fmt.Errorf("symlink cycle detected at %s", realDir)
	}
	w.visited[resolved] = true
	return nil
}
