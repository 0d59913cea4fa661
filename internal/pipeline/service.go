// Package pipeline sequences normalization, transcription and summarization
// for one uploaded recording and reports progress as the run moves through
// its stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"recap/internal/apperr"
	"recap/internal/audio"
	"recap/internal/export"
	"recap/internal/summarizer"
	"recap/internal/transcription"
)

type State string

const (
	StateIdle         State = "idle"
	StateNormalizing  State = "normalizing"
	StateTranscribing State = "transcribing"
	StateSummarizing  State = "summarizing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

// Progress bands per stage, in percent.
const (
	percentNormalizing     = 5
	percentTranscribeStart = 10
	percentTranscribeEnd   = 70
	percentSummarizeStart  = 75
	percentSummarizeEnd    = 95
	percentReady           = 100
)

type Normalizer interface {
	Normalize(ctx context.Context, sourcePath, declaredFormat string) (audio.Waveform, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, waveformPath string, progress transcription.ProgressFunc) (transcription.Transcript, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string, minLength, maxLength int, progress summarizer.ProgressFunc) (summarizer.Summary, error)
}

// Metrics receives run-level measurements. *observability.Metrics satisfies it.
type Metrics interface {
	ObserveStage(stage string, outcome string, duration time.Duration)
	IncRun(outcome string)
	ObserveWindows(ok, failed, silent int)
	ObserveChunks(ok, fallback int, extraPass bool)
}

type Event struct {
	RunID   string
	State   State
	Percent int
	Detail  string
}

type Input struct {
	Audio     io.Reader
	Extension string
	MinLength int
	MaxLength int
}

type Timings struct {
	Normalize  time.Duration
	Transcribe time.Duration
	Summarize  time.Duration
	Total      time.Duration
}

// Result holds whatever the run produced. On failure the artifacts of the
// stages that completed are kept.
type Result struct {
	RunID       string
	State       State
	Transcript  transcription.Transcript
	Summary     summarizer.Summary
	FailedStage State
	Err         error
	Timings     Timings
}

// StageError reports the stage a run failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Option func(*Service)

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

type Service struct {
	normalizer  Normalizer
	transcriber Transcriber
	summarizer  Summarizer
	workDir     string
	logger      *slog.Logger
	metrics     Metrics
}

func New(normalizer Normalizer, transcriber Transcriber, summarizer Summarizer, workDir string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		normalizer:  normalizer,
		transcriber: transcriber,
		summarizer:  summarizer,
		workDir:     workDir,
		logger:      logger,
		metrics:     nopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run processes one recording. progress may be nil. The run directory and any
// converted waveform are removed before the final event is emitted.
func (s *Service) Run(ctx context.Context, in Input, progress func(Event)) (Result, error) {
	r := &run{id: uuid.NewString(), started: time.Now(), progress: progress}
	res := Result{RunID: r.id, State: StateIdle}
	r.emit(StateIdle, 0, "")

	stage, err := s.execute(ctx, r, in, &res)
	res.Timings.Total = time.Since(r.started)

	if err != nil {
		// A canceled run reports the cancellation, not the stage error it caused.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = ctxErr
		}
		stageErr := &StageError{Stage: stage, Err: err}
		res.State = StateFailed
		res.FailedStage = stage
		res.Err = stageErr
		s.metrics.IncRun("failed")
		s.logger.Warn("run_failed",
			"run_id", r.id,
			"stage", stage,
			"kind", apperr.KindOf(err),
			"error", err,
			"duration_ms", res.Timings.Total.Milliseconds(),
		)
		r.emit(StateFailed, r.percent, apperr.MessageOf(err))
		return res, stageErr
	}

	res.State = StateReady
	s.metrics.IncRun("ok")
	s.logger.Info("run_finished",
		"run_id", r.id,
		"transcript_words", len(strings.Fields(res.Transcript.Text)),
		"summary_words", res.Summary.Words,
		"duration_ms", res.Timings.Total.Milliseconds(),
	)
	r.emit(StateReady, percentReady, "")
	return res, nil
}

// execute runs the stages and returns the stage that failed, if any.
func (s *Service) execute(ctx context.Context, r *run, in Input, res *Result) (State, error) {
	if in.MinLength <= 0 || in.MinLength > in.MaxLength {
		return StateIdle, apperr.Newf(apperr.KindInvalidRange,
			"min_length must be > 0 and <= max_length (got %d, %d)", in.MinLength, in.MaxLength)
	}
	if err := ctx.Err(); err != nil {
		return StateIdle, err
	}

	// Normalizing
	r.emit(StateNormalizing, percentNormalizing, "")
	started := time.Now()
	dir, err := s.createRunDir(r.id)
	if err != nil {
		return StateNormalizing, err
	}
	defer s.removeRunDir(dir)

	waveform, err := s.normalize(ctx, dir, in)
	res.Timings.Normalize = time.Since(started)
	s.observeStage(StateNormalizing, err, res.Timings.Normalize)
	if err != nil {
		return StateNormalizing, err
	}

	// Transcribing
	if err := ctx.Err(); err != nil {
		s.release(waveform)
		return StateTranscribing, err
	}
	r.emit(StateTranscribing, percentTranscribeStart, fmt.Sprintf("%s of audio", waveform.Duration.Round(time.Second)))
	started = time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, waveform.Path, func(done, total int) {
		r.emit(StateTranscribing, scale(percentTranscribeStart, percentTranscribeEnd, done, total),
			fmt.Sprintf("window %d of %d", done, total))
	})
	s.release(waveform)
	res.Timings.Transcribe = time.Since(started)
	res.Transcript = transcript
	s.observeStage(StateTranscribing, err, res.Timings.Transcribe)
	if len(transcript.Segments) > 0 {
		s.metrics.ObserveWindows(
			transcript.Count(transcription.StatusOK),
			transcript.Count(transcription.StatusFailed),
			transcript.Count(transcription.StatusSilent),
		)
	}
	if err != nil {
		return StateTranscribing, err
	}

	// Summarizing
	if err := ctx.Err(); err != nil {
		return StateSummarizing, err
	}
	r.emit(StateSummarizing, percentSummarizeStart, "")
	started = time.Now()
	summary, err := s.summarizer.Summarize(ctx, transcript.Text, in.MinLength, in.MaxLength, func(done, total int) {
		r.emit(StateSummarizing, scale(percentSummarizeStart, percentSummarizeEnd, done, total),
			fmt.Sprintf("chunk %d of %d", done, total))
	})
	res.Timings.Summarize = time.Since(started)
	res.Summary = summary
	s.observeStage(StateSummarizing, err, res.Timings.Summarize)
	if err != nil {
		return StateSummarizing, err
	}
	fallbacks := summary.Fallbacks()
	s.metrics.ObserveChunks(len(summary.Chunks)-fallbacks, fallbacks, summary.ExtraPass)
	return StateReady, nil
}

// normalize spools the upload into dir and converts it to the canonical waveform.
func (s *Service) normalize(ctx context.Context, dir string, in Input) (audio.Waveform, error) {
	format := audio.NormalizeFormat(in.Extension)
	if format == "" {
		return audio.Waveform{}, apperr.Newf(apperr.KindUnsupportedFormat,
			"unsupported audio format %q (supported: %v)", in.Extension, audio.SupportedFormats())
	}
	if in.Audio == nil {
		return audio.Waveform{}, apperr.New(apperr.KindEmptyInput, "no audio provided")
	}

	sourcePath := filepath.Join(dir, "source."+format)
	if err := spool(sourcePath, in.Audio); err != nil {
		return audio.Waveform{}, err
	}
	return s.normalizer.Normalize(ctx, sourcePath, format)
}

func spool(path string, r io.Reader) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("spool upload: %w", cerr)
		}
	}()
	n, err := io.Copy(f, r)
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindEmptyInput, "uploaded audio is empty")
	}
	return nil
}

// Summarize runs only the summarization stage, for transcripts obtained elsewhere.
func (s *Service) Summarize(ctx context.Context, transcript string, minLength, maxLength int) (summarizer.Summary, error) {
	return s.summarizer.Summarize(ctx, transcript, minLength, maxLength, nil)
}

// Export renders a transcript and summary on demand. Nothing is cached.
func (s *Service) Export(transcript, summary string, format export.Format) ([]byte, error) {
	return export.Export(transcript, summary, format)
}

func (s *Service) release(w audio.Waveform) {
	if err := w.Release(); err != nil {
		s.logger.Warn("waveform_release_failed", "path", w.Path, "error", err)
	}
}

func (s *Service) observeStage(stage State, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveStage(string(stage), outcome, d)
}

type run struct {
	id       string
	started  time.Time
	progress func(Event)
	percent  int
}

func (r *run) emit(state State, percent int, detail string) {
	r.percent = percent
	if r.progress != nil {
		r.progress(Event{RunID: r.id, State: state, Percent: percent, Detail: detail})
	}
}

func scale(from, to, done, total int) int {
	if total <= 0 {
		return to
	}
	return from + (to-from)*done/total
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, string, time.Duration) {}
func (nopMetrics) IncRun(string)                              {}
func (nopMetrics) ObserveWindows(int, int, int)               {}
func (nopMetrics) ObserveChunks(int, int, bool)               {}
