// Package progress renders pack progress to stderr: one aggregate bar
// across the whole operation plus one bar per group's container (unpack
// reports no progress),
// mirroring the original Rust ProgressDisplay/ProgressTracker pair
// (original_source/src/progress.rs, built on indicatif). There is no Go
// indicatif equivalent in the example pack, so this is enriched from
// rpcpool-yellowstone-faithful's go.mod, which already pulls in
// github.com/vbauerster/mpb/v8 for its own build progress bars.
package progress

import (
	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"backy/internal/applog"
)

// Display owns the aggregate bar and the multi-bar container every per-unit
// Tracker is added to. It is safe for concurrent use: mpb serializes bar
// updates internally, and Trackers only ever update their own bar plus
// IncrBy on the shared total bar.
type Display struct {
	progress *mpb.Progress
	total    *mpb.Bar
}

// New starts a display whose aggregate bar spans totalBytes.
func New(totalBytes uint64) *Display {
	p := mpb.New(mpb.WithWidth(64))
	total := p.AddBar(int64(totalBytes),
		mpb.PrependDecorators(decor.Name("total", decor.WC{W: 12})),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .2f / % .2f"),
			decor.Percentage(decor.WCSyncSpace),
		),
	)
	return &Display{progress: p, total: total}
}

// NewTracker adds a bar labeled name spanning totalBytes, linked to the
// shared aggregate bar. Each tracker gets an ephemeral trace id so its log
// lines can be correlated across the worker pool that packs groups
// concurrently.
func (d *Display) NewTracker(name string, totalBytes uint64) *Tracker {
	bar := d.progress.AddBar(int64(totalBytes),
		mpb.PrependDecorators(decor.Name(name, decor.WC{W: 20, C: decor.DindentRight})),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
	traceID := uuid.NewString()
	applog.Infof("[%s] starting %s (%d bytes)", traceID, name, totalBytes)
	return &Tracker{display: d, bar: bar, total: totalBytes, traceID: traceID, name: name}
}

// Wait blocks until every bar has finished rendering.
func (d *Display) Wait() {
	d.progress.Wait()
}

// Tracker advances one bar (and the shared aggregate) as bytes complete.
type Tracker struct {
	display *Display
	bar     *mpb.Bar
	total   uint64
	done    uint64
	traceID string
	name    string
}

// Advance reports amount additional bytes completed, finishing the bar once
// it reaches its total. Callers must report a bounded, monotonically
// increasing total across the lifetime of one tracker.
func (t *Tracker) Advance(amount uint64) {
	t.display.total.IncrBy(int(amount))
	t.bar.IncrBy(int(amount))
	t.done += amount
	if t.done >= t.total {
		t.bar.SetCurrent(int64(t.total))
		applog.Infof("[%s] finished %s", t.traceID, t.name)
	}
}
