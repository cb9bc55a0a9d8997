package pack

import (
	"context"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"backy/internal/group"
	"backy/internal/index"
	"backy/internal/model"
	"backy/internal/progress"
)

// Archive packs sources into containers under outDir. When maxGroupSize is
// zero, every entry is packed into a single container at outDir (outDir is
// then treated as a file path, not a directory, matching the original
// single-output-file mode); otherwise outDir is created as a directory and
// containers are named "1.bky", "2.bky", ... in group order, packed
// concurrently up to concurrency workers.
func Archive(ctx context.Context, fs afero.Fs, sources []model.Source, outDir string, key []byte, maxGroupSize uint64, concurrency int) error {
	sources = model.Disambiguate(sources)

	entries, err := index.Create(fs, sources)
	if err != nil {
		return err
	}

	var totalSize uint64
	for _, e := range entries {
		totalSize += e.Size
	}
	display := progress.New(totalSize)

	isSingleSource := len(sources) == 1

	if maxGroupSize == 0 {
		g := model.Group{Entries: toGroupEntries(entries), Size: totalSize}
		tracker := display.NewTracker(outDir, totalSize)
		err := GroupWithTracker(fs, outDir, g, key, Options{IsSingleSource: isSingleSource}, tracker)
		display.Wait()
		return err
	}

	groups := group.Create(entries, maxGroupSize)
	if err := fs.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}

	for i, g := range groups {
		i, g := i+1, g
		containerPath := containerName(outDir, i)
		tracker := display.NewTracker(containerPath, g.Size)
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return GroupWithTracker(fs, containerPath, g, key, Options{IsSingleSource: isSingleSource}, tracker)
		})
	}

	err = eg.Wait()
	display.Wait()
	return err
}

func toGroupEntries(entries []model.IndexEntry) []model.GroupEntry {
	out := make([]model.GroupEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.GroupEntry{Source: e.Source, Path: e.Path, Size: e.Size})
	}
	return out
}

func containerName(outDir string, groupNum int) string {
	return outDir + "/" + strconv.Itoa(groupNum) + ".bky"
}
