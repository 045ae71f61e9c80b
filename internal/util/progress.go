package util

import (
	"os"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var (
	progressMu sync.Mutex
	container  *mpb.Progress
)

// EnableProgress turns on interactive progress bars. Bars render on rank 0
// only; without this call every bar is a no-op.
func EnableProgress() {
	progressMu.Lock()
	defer progressMu.Unlock()
	if container == nil {
		container = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	}
}

// ShutdownProgress waits for any rendered bars to finish drawing.
func ShutdownProgress() {
	progressMu.Lock()
	defer progressMu.Unlock()
	if container != nil {
		container.Wait()
		container = nil
	}
}

// ProgressBar tracks one stage. The zero/nil bar is safe to use, so stages
// can update unconditionally.
type ProgressBar struct {
	bar *mpb.Bar
}

// NewProgressBar creates a stage bar on rank 0, or a no-op bar elsewhere.
func NewProgressBar(rank int, total int64, name string) *ProgressBar {
	progressMu.Lock()
	defer progressMu.Unlock()
	if container == nil || rank != 0 || total <= 0 {
		return &ProgressBar{}
	}
	bar := container.AddBar(total,
		mpb.PrependDecorators(decor.Name(name+" "), decor.CountersNoUnit("%d / %d")),
		mpb.AppendDecorators(decor.Percentage()),
	)
	return &ProgressBar{bar: bar}
}

// Inc advances the bar by one unit.
func (p *ProgressBar) Inc() {
	if p != nil && p.bar != nil {
		p.bar.Increment()
	}
}

// IncBy advances the bar by n units.
func (p *ProgressBar) IncBy(n int) {
	if p != nil && p.bar != nil {
		p.bar.IncrBy(n)
	}
}

// Done completes the bar regardless of how far it got.
func (p *ProgressBar) Done() {
	if p != nil && p.bar != nil {
		p.bar.SetTotal(-1, true)
	}
}
