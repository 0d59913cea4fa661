package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"recap/internal/apperr"
	"recap/internal/audio"
)

// UnintelligibleMarker stands in for a window that could not be transcribed.
const UnintelligibleMarker = "[unintelligible]"

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	StatusSilent Status = "silent"
)

type Segment struct {
	Index    int
	Start    time.Duration
	End      time.Duration
	Text     string
	Status   Status
	Attempts int
	Err      error
}

type Transcript struct {
	Text     string
	Segments []Segment
	Duration time.Duration
}

func (t Transcript) Count(status Status) int {
	return lo.CountBy(t.Segments, func(s Segment) bool { return s.Status == status })
}

// ProgressFunc receives the number of finished windows. Calls are serialized.
type ProgressFunc func(done, total int)

type Options struct {
	WindowLength     time.Duration
	Attempts         int
	Backoff          time.Duration
	Timeout          time.Duration
	Workers          int
	SilenceThreshold float64
}

type Service struct {
	engine Engine
	opts   Options
	logger *slog.Logger
}

func New(engine Engine, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Service{engine: engine, opts: opts, logger: logger}
}

// Transcribe splits the waveform into windows, transcribes each one and joins the
// results in window order. Windows that keep failing become UnintelligibleMarker;
// the call fails only when every non-silent window failed.
func (s *Service) Transcribe(ctx context.Context, waveformPath string, progress ProgressFunc) (Transcript, error) {
	reader, err := audio.OpenWAV(waveformPath)
	if err != nil {
		return Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, err, "waveform is unreadable")
	}
	defer reader.Close()

	header := reader.Header()
	transcript := Transcript{Duration: audio.FramesToDuration(header.Frames, header.SampleRate)}
	windows := PlanWindows(header.Frames, header.SampleRate, s.opts.WindowLength)
	if len(windows) == 0 {
		return transcript, nil
	}

	dir, err := os.MkdirTemp(filepath.Dir(waveformPath), "windows-*")
	if err != nil {
		return Transcript{}, fmt.Errorf("create window dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("window_cleanup_failed", "dir", dir, "error", err)
		}
	}()

	cuts, err := s.cut(reader, header, windows, dir)
	if err != nil {
		return Transcript{}, apperr.Wrap(apperr.KindTranscriptionFailed, err, "waveform is unreadable")
	}

	segments := make([]Segment, len(windows))
	report := newReporter(progress, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, cut := range cuts {
		if cut.Path == "" {
			segments[i] = Segment{Index: i, Start: cut.Start, End: cut.End, Status: StatusSilent}
			report.done()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, attempts, err := s.transcribeWindow(gctx, cut)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("window_failed", "index", i, "attempts", attempts, "error", err)
				segments[i] = Segment{Index: i, Start: cut.Start, End: cut.End, Text: UnintelligibleMarker, Status: StatusFailed, Attempts: attempts, Err: err}
			} else {
				segments[i] = Segment{Index: i, Start: cut.Start, End: cut.End, Text: text, Status: StatusOK, Attempts: attempts}
			}
			report.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Transcript{}, err
	}

	transcript.Segments = segments
	transcript.Text = joinSegments(segments)

	attempted := len(segments) - transcript.Count(StatusSilent)
	failed := transcript.Count(StatusFailed)
	s.logger.Info("transcription_finished",
		"windows", len(segments),
		"failed", failed,
		"silent", len(segments)-attempted,
	)
	if attempted > 0 && failed == attempted {
		return transcript, apperr.Wrap(apperr.KindTranscriptionFailed, lastError(segments),
			fmt.Sprintf("all %d windows failed", attempted))
	}
	return transcript, nil
}

func (s *Service) transcribeWindow(ctx context.Context, w WindowAudio) (string, int, error) {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.Backoff), uint64(s.opts.Attempts-1)),
		ctx,
	)
	text, err := backoff.RetryWithData(func() (string, error) {
		attempts++
		callCtx := ctx
		if s.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
		}
		text, err := s.engine.TranscribeWindow(callCtx, w)
		if err != nil {
			if !apperr.Retryable(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return strings.TrimSpace(text), nil
	}, policy)
	return text, attempts, err
}

// cut writes every non-silent window to its own WAV file. Silent windows are
// returned with an empty Path.
func (s *Service) cut(reader *audio.Reader, header audio.Header, windows []Window, dir string) ([]WindowAudio, error) {
	cuts := make([]WindowAudio, len(windows))
	for i, w := range windows {
		cuts[i] = WindowAudio{Window: w}

		samples, err := reader.ReadFrames(int(w.Frames()))
		if errors.Is(err, io.EOF) {
			// Data chunk shorter than its header claims; nothing left to send.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read window %d: %w", i, err)
		}

		peak := audio.Peak(samples, header.BitDepth)
		cuts[i].Peak = peak
		if peak <= s.opts.SilenceThreshold {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("window-%04d.wav", i))
		if err := audio.WriteWAV(path, samples, header.SampleRate, header.Channels, header.BitDepth); err != nil {
			return nil, fmt.Errorf("write window %d: %w", i, err)
		}
		cuts[i].Path = path
	}
	return cuts, nil
}

func joinSegments(segments []Segment) string {
	texts := lo.FilterMap(segments, func(s Segment, _ int) (string, bool) {
		return s.Text, s.Text != ""
	})
	return strings.Join(texts, " ")
}

func lastError(segments []Segment) error {
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].Err != nil {
			return segments[i].Err
		}
	}
	return errors.New("no window succeeded")
}

type reporter struct {
	mu       sync.Mutex
	fn       ProgressFunc
	total    int
	finished int
}

func newReporter(fn ProgressFunc, total int) *reporter {
	return &reporter{fn: fn, total: total}
}

func (r *reporter) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	if r.fn != nil {
		r.fn(r.finished, r.total)
	}
}
