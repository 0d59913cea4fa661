package transcription

import (
	"time"

	"recap/internal/audio"
)

// Window is a contiguous, half-open frame range [StartFrame, EndFrame) of a waveform.
type Window struct {
	Index      int
	StartFrame int64
	EndFrame   int64
	Start      time.Duration
	End        time.Duration
}

func (w Window) Frames() int64 {
	return w.EndFrame - w.StartFrame
}

func (w Window) Duration() time.Duration {
	return w.End - w.Start
}

// PlanWindows splits totalFrames into consecutive windows no longer than limit.
// The last window holds the remainder. A non-positive limit yields one window.
func PlanWindows(totalFrames int64, sampleRate int, limit time.Duration) []Window {
	if totalFrames <= 0 || sampleRate <= 0 {
		return nil
	}

	perWindow := totalFrames
	if limit > 0 {
		perWindow = int64(limit) * int64(sampleRate) / int64(time.Second)
		if perWindow <= 0 {
			perWindow = 1
		}
	}

	windows := make([]Window, 0, (totalFrames+perWindow-1)/perWindow)
	for start := int64(0); start < totalFrames; start += perWindow {
		end := min(start+perWindow, totalFrames)
		windows = append(windows, Window{
			Index:      len(windows),
			StartFrame: start,
			EndFrame:   end,
			Start:      audio.FramesToDuration(start, sampleRate),
			End:        audio.FramesToDuration(end, sampleRate),
		})
	}
	return windows
}
