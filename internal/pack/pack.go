// Package pack implements the two-pass container writer: reserve the header
// region, stream every entry's payload while hashing it, then patch the
// header in with a freshly re-keyed encrypter. The buffered, synced file
// writes follow the teacher's AsyncWriter discipline (koabula-MochiBox
// core/async_writer.go: bufio.Writer over an *os.File, flushed and fsynced
// on close) without the background-goroutine flush — the packer's writes
// are already sequential and single-owner, so the extra concurrency the
// teacher needed for its download path would just add synchronization for
// no benefit here.
package pack

import (
	"bufio"
	"crypto/rand"
	"io"
	"os"

	"github.com/spf13/afero"

	"backy/internal/applog"
	"backy/internal/archerr"
	"backy/internal/cryptostream"
	"backy/internal/hashing"
	"backy/internal/header"
	"backy/internal/model"
)

// MagicMarker prefixes every container.
const MagicMarker = "backy archive v0.2\n"

// Options controls one container write.
type Options struct {
	// IsSingleSource sets the header flag used at unpack time to decide
	// whether entries are re-nested under their source id.
	IsSingleSource bool
}

// Tracker receives per-entry progress as a group is packed. It matches the
// original ProgressTracker contract (original_source/src/progress.rs):
// advance once per completed entry, by that entry's byte size.
type Tracker interface {
	Advance(amount uint64)
}

type noopTracker struct{}

func (noopTracker) Advance(uint64) {}

// RandomIV returns a freshly generated 24-byte nonce.
func RandomIV() ([]byte, error) {
	iv := make([]byte, cryptostream.NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Group writes one container to outPath containing every entry in g,
// reading source files through fs. outPath must not already exist: the
// file is created exclusively, the first step of pass one.
func Group(fs afero.Fs, outPath string, g model.Group, key []byte, opts Options) error {
	return GroupWithTracker(fs, outPath, g, key, opts, noopTracker{})
}

// GroupWithTracker is Group, reporting each completed entry's size to tracker.
func GroupWithTracker(fs afero.Fs, outPath string, g model.Group, key []byte, opts Options, tracker Tracker) error {
	file, err := fs.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return archerr.IO(outPath, err)
	}
	defer file.Close()

	buffered := bufio.NewWriterSize(file, 4<<20)

	if _, err := buffered.WriteString(MagicMarker); err != nil {
		return archerr.IO(outPath, err)
	}

	iv, err := RandomIV()
	if err != nil {
		return err
	}
	if _, err := buffered.Write(iv); err != nil {
		return archerr.IO(outPath, err)
	}
	if err := buffered.Flush(); err != nil {
		return archerr.IO(outPath, err)
	}

	sources := g.Sources()
	entriesBySource := make(map[string][]model.EntryPath, len(sources))
	for _, e := range g.Entries {
		entriesBySource[e.Source.Id] = append(entriesBySource[e.Source.Id], e.Path)
	}

	builder := header.NewBuilder(sources, entriesBySource, header.Flags{IsSingleSource: opts.IsSingleSource})
	headerSize := builder.Size()

	encrypter, err := cryptostream.NewEncrypter(buffered, key, iv)
	if err != nil {
		return err
	}

	if err := writeZeroFiller(encrypter, headerSize); err != nil {
		return archerr.IO(outPath, err)
	}

	// stream payloads in source/path order -- the authoritative layout.
	sortedEntries := sortedGroupEntries(g, sources)
	for _, ge := range sortedEntries {
		written, hash, err := streamEntry(fs, encrypter, ge)
		if err != nil {
			return err
		}
		if written != ge.Size {
			applog.Warnf("entry %s in source %s: indexed size %d, actual %d bytes written",
				ge.Path, ge.Source.Id, ge.Size, written)
		}
		if err := builder.SetEntry(ge.Source, ge.Path, written, hash); err != nil {
			return err
		}
		tracker.Advance(written)
	}

	if err := buffered.Flush(); err != nil {
		return archerr.IO(outPath, err)
	}

	// Pass 2: seek back to just after the IV and patch the header in with
	// a freshly re-keyed encrypter at logical offset 0.
	if _, err := file.Seek(int64(len(MagicMarker)+len(iv)), io.SeekStart); err != nil {
		return archerr.IO(outPath, err)
	}

	patchEncrypter, err := cryptostream.NewEncrypter(file, key, iv)
	if err != nil {
		return err
	}
	if _, err := builder.WriteTo(patchEncrypter); err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return archerr.IO(outPath, err)
	}

	return nil
}

func sortedGroupEntries(g model.Group, sources []model.Source) []model.GroupEntry {
	bySource := make(map[string][]model.GroupEntry, len(sources))
	for _, e := range g.Entries {
		bySource[e.Source.Id] = append(bySource[e.Source.Id], e)
	}
	for id := range bySource {
		entries := bySource[id]
		sortGroupEntriesByPath(entries)
		bySource[id] = entries
	}

	// Walk sources in the same (Id, Path) order the header builder uses, so
	// payload offsets match the header's prefix sums.
	ordered := append([]model.Source(nil), sources...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Less(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	out := make([]model.GroupEntry, 0, len(g.Entries))
	for _, s := range ordered {
		out = append(out, bySource[s.Id]...)
	}
	return out
}

func sortGroupEntriesByPath(entries []model.GroupEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Path.Less(entries[j-1].Path); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func streamEntry(fs afero.Fs, w io.Writer, ge model.GroupEntry) (uint64, [32]byte, error) {
	fullPath := entryFullPath(ge)
	f, err := fs.Open(fullPath)
	if err != nil {
		return 0, [32]byte{}, archerr.IO(fullPath, err)
	}
	defer f.Close()

	hr := hashing.NewReader(f)
	written, err := io.Copy(w, hr)
	if err != nil {
		return 0, [32]byte{}, archerr.IO(fullPath, err)
	}

	return uint64(written), hr.Finalize(), nil
}

func entryFullPath(ge model.GroupEntry) string {
	if ge.Path == "" {
		return ge.Source.Path
	}
	return ge.Source.Path + "/" + string(ge.Path)
}

func writeZeroFiller(w io.Writer, n uint64) error {
	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	for n > 0 {
		k := uint64(chunk)
		if n < k {
			k = n
		}
		if _, err := w.Write(buf[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

