package commands

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"recap/internal/pipeline"
)

// progressRenderer draws pipeline events as a single percentage bar.
// A disabled renderer ignores every call.
type progressRenderer struct {
	container *mpb.Progress
	bar       *mpb.Bar

	mu    sync.Mutex
	stage string
}

func newProgressRenderer(w io.Writer, enabled bool) *progressRenderer {
	if !enabled {
		return &progressRenderer{}
	}
	if w == nil {
		w = os.Stderr
	}

	r := &progressRenderer{stage: string(pipeline.StateIdle)}
	r.container = mpb.New(
		mpb.WithOutput(w),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	r.bar = r.container.AddBar(100,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return r.currentStage() }, decor.WC{W: len(pipeline.StateTranscribing) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
	)
	return r
}

func (r *progressRenderer) Handle(e pipeline.Event) {
	if r.bar == nil {
		return
	}
	r.mu.Lock()
	r.stage = string(e.State)
	r.mu.Unlock()

	switch e.State {
	case pipeline.StateFailed:
		r.bar.Abort(false)
	default:
		r.bar.SetCurrent(int64(e.Percent))
	}
}

func (r *progressRenderer) currentStage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Wait flushes the bar. A bar that never finished is aborted first.
func (r *progressRenderer) Wait() {
	if r.container == nil {
		return
	}
	if !r.bar.Completed() {
		r.bar.Abort(false)
	}
	r.container.Wait()
}

func isTTY(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
