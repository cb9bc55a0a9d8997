// Package header implements the archive table-of-contents codec: the
// builder that accumulates per-entry hash/size as the packer streams
// payloads, and the reader that parses a container's header back into an
// offset-annotated map. The field-by-field little-endian read/write helpers
// mirror the teacher's own low-level decoding style in koabula-MochiBox
// backend/crypto/stream.go (fixed-width reads followed by u32/u64 LE
// conversion), generalized to a whole table instead of one IV.
package header

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"backy/internal/archerr"
	"backy/internal/model"
)

// Flags records container-wide bits; only bit 0 is defined.
type Flags struct {
	IsSingleSource bool
}

func (f Flags) toBytes() [4]byte {
	var v uint32
	if f.IsSingleSource {
		v |= 1
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

func flagsFromBytes(b [4]byte) Flags {
	v := binary.LittleEndian.Uint32(b[:])
	return Flags{IsSingleSource: v&1 != 0}
}

type slotValue struct {
	size uint64
	hash [32]byte
	set  bool
}

// Builder accumulates the header for one container. Construct with the
// full set of sources and entries (empty slots); the packer calls SetEntry
// once per slot as it streams each entry's payload.
type Builder struct {
	flags   Flags
	sources []model.Source
	// paths is not populated. slots maps each source id to that source's
	// entry slots keyed by path; WriteTo sorts the paths when serializing.
	paths []model.EntryPath
	slots map[string]map[model.EntryPath]*slotValue
}

// NewBuilder constructs an empty builder from a group's sources and
// entries, all slots unset.
func NewBuilder(sources []model.Source, entriesBySource map[string][]model.EntryPath, flags Flags) *Builder {
	sorted := append([]model.Source(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	slots := make(map[string]map[model.EntryPath]*slotValue, len(sorted))
	for _, s := range sorted {
		paths := append([]model.EntryPath(nil), entriesBySource[s.Id]...)
		sort.Slice(paths, func(i, j int) bool { return paths[i].Less(paths[j]) })
		m := make(map[model.EntryPath]*slotValue, len(paths))
		for _, p := range paths {
			m[p] = &slotValue{}
		}
		slots[s.Id] = m
	}

	return &Builder{flags: flags, sources: sorted, slots: slots}
}

// SetEntry fills the single matching slot. Calling it twice for the same
// (source, path) is an invariant violation.
func (b *Builder) SetEntry(source model.Source, path model.EntryPath, size uint64, hash [32]byte) error {
	m, ok := b.slots[source.Id]
	if !ok {
		return archerr.Invariant(fmt.Sprintf("source %q not present in header skeleton", source.Id))
	}
	slot, ok := m[path]
	if !ok {
		return archerr.Invariant(fmt.Sprintf("entry %q not present in header skeleton for source %q", path, source.Id))
	}
	if slot.set {
		return archerr.Invariant(fmt.Sprintf("entry %q in source %q set twice", path, source.Id))
	}
	slot.size = size
	slot.hash = hash
	slot.set = true
	return nil
}

func sortedPaths(m map[model.EntryPath]*slotValue) []model.EntryPath {
	paths := make([]model.EntryPath, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Less(paths[j]) })
	return paths
}

// Size returns the exact number of bytes WriteTo will emit, computable
// without knowing any payload sizes since every field's width depends only
// on string lengths known at indexing time.
func (b *Builder) Size() uint64 {
	var size uint64
	size += 4 // flags
	size += 4 // source_count
	for _, s := range b.sources {
		size += 4 + uint64(len(s.Id)) + 4 // id_length, id, entry_count
		for p := range b.slots[s.Id] {
			size += 32 + 8 + 4 + uint64(len(p)) // hash, size, path_length, path
		}
	}
	return size
}

// WriteTo serializes the header. Every entry slot must have been set
// exactly once; failing that is an invariant violation, not a runtime
// condition to retry.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	var written int64

	write := func(p []byte) error {
		n, err := w.Write(p)
		written += int64(n)
		return err
	}

	flagBytes := b.flags.toBytes()
	if err := write(flagBytes[:]); err != nil {
		return written, err
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(b.sources)))
	if err := write(count[:]); err != nil {
		return written, err
	}

	for _, s := range b.sources {
		if err := writeSlice(write, []byte(s.Id)); err != nil {
			return written, err
		}

		paths := sortedPaths(b.slots[s.Id])
		var entryCount [4]byte
		binary.LittleEndian.PutUint32(entryCount[:], uint32(len(paths)))
		if err := write(entryCount[:]); err != nil {
			return written, err
		}

		for _, p := range paths {
			slot := b.slots[s.Id][p]
			if !slot.set {
				return written, archerr.Invariant(fmt.Sprintf("entry %q in source %q has no hash/size set", p, s.Id))
			}
			if err := write(slot.hash[:]); err != nil {
				return written, err
			}
			var sizeBuf [8]byte
			binary.LittleEndian.PutUint64(sizeBuf[:], slot.size)
			if err := write(sizeBuf[:]); err != nil {
				return written, err
			}
			if err := writeSlice(write, []byte(p)); err != nil {
				return written, err
			}
		}
	}

	if uint64(written) != b.Size() {
		return written, archerr.Invariant("serialized header size does not match computed header_size")
	}

	return written, nil
}

func writeSlice(write func([]byte) error, slice []byte) error {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(slice)))
	if err := write(length[:]); err != nil {
		return err
	}
	return write(slice)
}

// Entry is one parsed header record, annotated with its payload offset
// relative to the end of the header (the prefix sum of preceding entry
// sizes); readers add the header's length to reach the logical offset.
type Entry struct {
	Path     model.EntryPath
	Hash     [32]byte
	Size     uint64
	Position uint64
}

// Header is the parsed table of contents for one container.
type Header struct {
	Flags   Flags
	Entries map[string][]Entry // source id -> entries, in header order
}

// ReadFrom parses a header from r, which must be positioned at the start
// of the encrypted region. Payload offsets are reconstructed as the prefix
// sum of preceding entry sizes.
func ReadFrom(r io.Reader) (*Header, error) {
	flagBytes, err := readBytes(r, 4)
	if err != nil {
		return nil, malformed("flags", err)
	}
	var fb [4]byte
	copy(fb[:], flagBytes)
	flags := flagsFromBytes(fb)

	sourceCount, err := readU32(r)
	if err != nil {
		return nil, malformed("source_count", err)
	}

	entries := make(map[string][]Entry, sourceCount)
	var position uint64

	for i := uint32(0); i < sourceCount; i++ {
		idBytes, err := readSlice(r)
		if err != nil {
			return nil, malformed("source id", err)
		}
		id := string(idBytes)

		entryCount, err := readU32(r)
		if err != nil {
			return nil, malformed("entry_count", err)
		}

		sourceEntries := make([]Entry, 0, entryCount)
		for j := uint32(0); j < entryCount; j++ {
			hashBytes, err := readBytes(r, 32)
			if err != nil {
				return nil, malformed("entry hash", err)
			}
			var hash [32]byte
			copy(hash[:], hashBytes)

			size, err := readU64(r)
			if err != nil {
				return nil, malformed("entry size", err)
			}

			pathBytes, err := readSlice(r)
			if err != nil {
				return nil, malformed("entry path", err)
			}

			sourceEntries = append(sourceEntries, Entry{
				Path:     model.EntryPath(pathBytes),
				Hash:     hash,
				Size:     size,
				Position: position,
			})
			position += size
		}

		if _, exists := entries[id]; exists {
			return nil, archerr.Input("", fmt.Sprintf("duplicate source id %q in header", id), nil)
		}
		entries[id] = sourceEntries
	}

	return &Header{Flags: flags, Entries: entries}, nil
}

func malformed(field string, err error) error {
	return archerr.Input("", fmt.Sprintf("malformed header: %s: %v", field, err), err)
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readU32(r io.Reader) (uint32, error) {
	b, err := readBytes(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readU64(r io.Reader) (uint64, error) {
	b, err := readBytes(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func readSlice(r io.Reader) ([]byte, error) {
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	// A corrupt or wrong-key header can produce an implausible length;
	// refuse to allocate based on attacker/garbage-controlled input.
	const maxReasonableLength = 1 << 24
	if length > maxReasonableLength {
		return nil, fmt.Errorf("implausible length %d", length)
	}
	return readBytes(r, int(length))
}
