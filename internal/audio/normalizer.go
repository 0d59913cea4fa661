package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recap/internal/apperr"
	"recap/internal/executor"
)

// Normalizer converts supported audio files into the canonical waveform.
type Normalizer struct {
	exec       executor.Executor
	ffmpegPath string
	timeout    time.Duration
	logger     *slog.Logger
}

func NewNormalizer(exec executor.Executor, ffmpegPath string, timeout time.Duration, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{
		exec:       exec,
		ffmpegPath: ffmpegPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// Normalize returns the canonical waveform for sourcePath. A canonical WAV source
// is returned as is; anything else is decoded by ffmpeg into one new temporary
// file next to the source. The caller releases the result with Waveform.Release.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath, declaredFormat string) (Waveform, error) {
	format := NormalizeFormat(declaredFormat)
	if format == "" {
		return Waveform{}, apperr.Newf(apperr.KindUnsupportedFormat,
			"unsupported audio format %q, supported: %s", declaredFormat, strings.Join(supportedFormats, ", "))
	}

	header, err := readPrefix(sourcePath, 12)
	if err != nil {
		return Waveform{}, apperr.Wrap(apperr.KindDecode, err, "audio source is unreadable")
	}
	if sniffed := sniffFormat(header); sniffed != "" && sniffed != format {
		n.logger.Warn("declared_format_mismatch", "declared", format, "detected", sniffed, "path", sourcePath)
		format = sniffed
	}

	if format == FormatWAV {
		if h, err := ReadHeader(sourcePath); err == nil && h.IsCanonical() {
			n.logger.Debug("normalize_fast_path", "path", sourcePath, "frames", h.Frames)
			return waveformFrom(sourcePath, sourcePath, false, h), nil
		}
	}

	out, err := os.CreateTemp(filepath.Dir(sourcePath), "canonical-*.wav")
	if err != nil {
		return Waveform{}, fmt.Errorf("create canonical waveform: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	started := time.Now()
	wf, err := n.decode(ctx, sourcePath, outPath)
	if err != nil {
		if rmErr := os.Remove(outPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			n.logger.Warn("canonical_cleanup_failed", "path", outPath, "error", rmErr)
		}
		return Waveform{}, err
	}
	n.logger.Info("audio_normalized",
		"source_format", format,
		"duration_ms", wf.Duration.Milliseconds(),
		"decode_ms", time.Since(started).Milliseconds(),
	)
	return wf, nil
}

func (n *Normalizer) decode(ctx context.Context, sourcePath, outPath string) (Waveform, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", sourcePath,
		"-vn",
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y", outPath,
	}
	if _, err := n.exec.Execute(ctx, n.ffmpegPath, args...); err != nil {
		return Waveform{}, apperr.Wrap(apperr.KindDecode, err, "ffmpeg decode failed")
	}

	h, err := ReadHeader(outPath)
	if err != nil {
		return Waveform{}, apperr.Wrap(apperr.KindDecode, err, "decoded waveform is unreadable")
	}
	if !h.IsCanonical() {
		return Waveform{}, apperr.Newf(apperr.KindDecode,
			"decoded waveform is %d Hz, %d channel(s), %d bit", h.SampleRate, h.Channels, h.BitDepth)
	}
	return waveformFrom(outPath, sourcePath, true, h), nil
}

// Release deletes the waveform file if the normalizer created it.
func (w Waveform) Release() error {
	if !w.Converted || w.Path == "" {
		return nil
	}
	if err := os.Remove(w.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func waveformFrom(path, source string, converted bool, h Header) Waveform {
	return Waveform{
		Path:       path,
		SourcePath: source,
		Converted:  converted,
		SampleRate: h.SampleRate,
		Channels:   h.Channels,
		BitDepth:   h.BitDepth,
		Frames:     h.Frames,
		Duration:   FramesToDuration(h.Frames, h.SampleRate),
	}
}

func readPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:m], nil
}
