package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"recap/internal/apperr"
)

// ProgressFunc receives the number of summarized chunks. Calls are serialized.
type ProgressFunc func(done, total int)

type Options struct {
	Budget Budget
	// ChunkFloor is the smallest per-chunk maximum length in words.
	ChunkFloor int
	// MergeTolerance is the fraction above the maximum length accepted
	// without another pass.
	MergeTolerance float64
	Attempts       int
	Backoff        time.Duration
	Timeout        time.Duration
	Workers        int
}

type ChunkSummary struct {
	Chunk    Chunk
	Text     string
	Fallback bool
	Attempts int
	Err      error
}

type Summary struct {
	Text      string
	Chunks    []ChunkSummary
	ExtraPass bool
	Truncated bool
	Words     int
}

func (s Summary) Fallbacks() int {
	return lo.CountBy(s.Chunks, func(c ChunkSummary) bool { return c.Fallback })
}

type Service struct {
	model  Model
	opts   Options
	logger *slog.Logger
}

func New(model Model, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ChunkFloor <= 0 {
		opts.ChunkFloor = 1
	}
	return &Service{model: model, opts: opts, logger: logger}
}

// Summarize condenses transcript to between minLength and maxLength words.
// Transcripts over the input budget are summarized chunk by chunk and the
// chunk summaries are merged, with at most one extra pass over the merge.
func (s *Service) Summarize(ctx context.Context, transcript string, minLength, maxLength int, progress ProgressFunc) (Summary, error) {
	if minLength <= 0 || minLength > maxLength {
		return Summary{}, apperr.Newf(apperr.KindInvalidRange,
			"min_length must be > 0 and <= max_length (got %d, %d)", minLength, maxLength)
	}
	text := normalizeSpace(transcript)
	if text == "" {
		return Summary{}, apperr.New(apperr.KindEmptyInput, "transcript is empty")
	}

	chunks := ChunkText(text, s.opts.Budget)
	chunkMin, chunkMax := minLength, maxLength
	if len(chunks) > 1 {
		chunkMin, chunkMax = s.perChunkBounds(minLength, maxLength, len(chunks))
	}

	results, err := s.summarizeChunks(ctx, chunks, chunkMin, chunkMax, progress)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Chunks: results}
	if fallbacks := summary.Fallbacks(); fallbacks == len(results) {
		return Summary{}, apperr.Wrap(apperr.KindSummarizationFailed, results[len(results)-1].Err,
			fmt.Sprintf("all %d chunks failed", len(results)))
	}

	merged := strings.Join(lo.Map(results, func(r ChunkSummary, _ int) string { return r.Text }), " ")
	// A direct summary must fit maxLength; a merge of chunk summaries gets the tolerance.
	limit := maxLength
	if len(chunks) > 1 {
		limit += int(math.Ceil(float64(maxLength) * s.opts.MergeTolerance))
	}

	if WordCount(merged) > limit && len(chunks) > 1 {
		summary.ExtraPass = true
		pass, _, err := s.call(ctx, merged, minLength, maxLength)
		switch {
		case err == nil:
			merged = pass
		case ctx.Err() != nil:
			return Summary{}, ctx.Err()
		default:
			s.logger.Warn("merge_pass_failed", "error", err)
			merged = TruncateWords(merged, maxLength)
			summary.Truncated = true
		}
	}
	if WordCount(merged) > limit {
		merged = TruncateWords(merged, maxLength)
		summary.Truncated = true
	}

	summary.Text = normalizeSpace(merged)
	summary.Words = WordCount(summary.Text)
	s.logger.Info("summary_finished",
		"chunks", len(chunks),
		"fallbacks", summary.Fallbacks(),
		"extra_pass", summary.ExtraPass,
		"words", summary.Words,
	)
	return summary, nil
}

// perChunkBounds splits [minLength, maxLength] across n chunks. The maximum
// never drops below the chunk floor.
func (s *Service) perChunkBounds(minLength, maxLength, n int) (int, int) {
	perMax := max(maxLength/n, s.opts.ChunkFloor)
	perMin := min(max(minLength/n, 1), perMax)
	return perMin, perMax
}

func (s *Service) summarizeChunks(ctx context.Context, chunks []Chunk, minWords, maxWords int, progress ProgressFunc) ([]ChunkSummary, error) {
	results := make([]ChunkSummary, len(chunks))
	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, len(chunks))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, attempts, err := s.call(gctx, chunk.Text, minWords, maxWords)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("chunk_failed", "index", i, "attempts", attempts, "error", err)
				results[i] = ChunkSummary{Chunk: chunk, Text: extract(chunk.Text, maxWords), Fallback: true, Attempts: attempts, Err: err}
			} else {
				results[i] = ChunkSummary{Chunk: chunk, Text: text, Attempts: attempts}
			}
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// call runs one model request with retries and a per-attempt timeout.
func (s *Service) call(ctx context.Context, text string, minWords, maxWords int) (string, int, error) {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.Backoff), uint64(s.opts.Attempts-1)),
		ctx,
	)
	out, err := backoff.RetryWithData(func() (string, error) {
		attempts++
		callCtx := ctx
		if s.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
		}
		out, err := s.model.Summarize(callCtx, text, minWords, maxWords)
		if err != nil {
			if !apperr.Retryable(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		out = normalizeSpace(out)
		if out == "" {
			return "", errEmptySummary
		}
		return out, nil
	}, policy)
	return out, attempts, err
}
