package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recap/internal/apperr"
	"recap/internal/audio"
	upstream "recap/internal/upstream/openai"
)

const testRate = 1000

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeWaveform writes one second of audio per entry; true entries carry a
// square wave, false entries are digital silence.
func writeWaveform(t *testing.T, dir string, loud ...bool) string {
	t.Helper()
	samples := make([]int, 0, len(loud)*testRate)
	for _, l := range loud {
		for i := 0; i < testRate; i++ {
			v := 0
			if l {
				v = 8000
				if i%2 == 1 {
					v = -8000
				}
			}
			samples = append(samples, v)
		}
	}
	path := filepath.Join(dir, "canonical.wav")
	if err := audio.WriteWAV(path, samples, testRate, 1, 16); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	return path
}

func loudSeconds(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func testOptions() Options {
	return Options{
		WindowLength:     time.Second,
		Attempts:         3,
		Backoff:          time.Millisecond,
		Timeout:          time.Second,
		Workers:          1,
		SilenceThreshold: 0.01,
	}
}

func indexEngine() Engine {
	return EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		return fmt.Sprintf("w%d", w.Index), nil
	})
}

func TestTranscribeJoinsWindowsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, loudSeconds(5)...)

	engine := EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		// Later windows finish first.
		time.Sleep(time.Duration(5-w.Index) * 5 * time.Millisecond)
		return fmt.Sprintf("  w%d ", w.Index), nil
	})
	opts := testOptions()
	opts.Workers = 4

	got, err := New(engine, opts, testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "w0 w1 w2 w3 w4" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if got.Duration != 5*time.Second {
		t.Fatalf("unexpected duration %s", got.Duration)
	}
	for i, seg := range got.Segments {
		if seg.Index != i || seg.Status != StatusOK || seg.Attempts != 1 {
			t.Fatalf("unexpected segment %d: %+v", i, seg)
		}
	}
}

func TestTranscribeMarksFailedWindowsInPlace(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, loudSeconds(5)...)

	var calls atomic.Int32
	engine := EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		calls.Add(1)
		if w.Index == 1 || w.Index == 3 {
			return "", errors.New("upstream 503")
		}
		return fmt.Sprintf("w%d", w.Index), nil
	})

	got, err := New(engine, testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	want := "w0 [unintelligible] w2 [unintelligible] w4"
	if got.Text != want {
		t.Fatalf("got %q want %q", got.Text, want)
	}
	if got.Count(StatusFailed) != 2 {
		t.Fatalf("expected 2 failed segments, got %d", got.Count(StatusFailed))
	}
	if seg := got.Segments[1]; seg.Attempts != 3 || seg.Err == nil {
		t.Fatalf("failed window should exhaust its attempts: %+v", seg)
	}
	// 3 good windows once each, 2 bad windows three times each.
	if n := calls.Load(); n != 9 {
		t.Fatalf("expected 9 engine calls, got %d", n)
	}
}

func TestTranscribeFailsWhenEveryWindowFails(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, loudSeconds(3)...)
	cause := errors.New("model unavailable")
	engine := EngineFunc(func(context.Context, WindowAudio) (string, error) {
		return "", cause
	})
	opts := testOptions()
	opts.Attempts = 2

	_, err := New(engine, opts, testLogger()).Transcribe(context.Background(), path, nil)
	if !errors.Is(err, apperr.ErrTranscriptionFailed) {
		t.Fatalf("expected TranscriptionFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the last engine error to be wrapped, got %v", err)
	}
}

func TestTranscribeRetriesUntilSuccess(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, true)

	var calls atomic.Int32
	engine := EngineFunc(func(context.Context, WindowAudio) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("flaky")
		}
		return "hello", nil
	})

	got, err := New(engine, testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "hello" || got.Segments[0].Attempts != 3 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestTranscribeSkipsSilentWindows(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, false, true, false)

	var seen []int
	var mu sync.Mutex
	engine := EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		mu.Lock()
		seen = append(seen, w.Index)
		mu.Unlock()
		return "speech", nil
	})

	got, err := New(engine, testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "speech" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("engine should only see window 1, saw %v", seen)
	}
	if got.Count(StatusSilent) != 2 {
		t.Fatalf("expected 2 silent segments, got %d", got.Count(StatusSilent))
	}
}

func TestTranscribeAllSilenceIsEmptyNotFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, false, false)
	engine := EngineFunc(func(context.Context, WindowAudio) (string, error) {
		t.Fatal("engine should not be called on silence")
		return "", nil
	})

	got, err := New(engine, testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "" {
		t.Fatalf("expected empty transcript, got %q", got.Text)
	}
}

func TestTranscribeZeroLengthWaveform(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir)

	got, err := New(indexEngine(), testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "" || len(got.Segments) != 0 || got.Duration != 0 {
		t.Fatalf("expected an empty transcript, got %+v", got)
	}
}

func TestTranscribeUnreadableWaveform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canonical.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(indexEngine(), testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if !errors.Is(err, apperr.ErrTranscriptionFailed) {
		t.Fatalf("expected TranscriptionFailed, got %v", err)
	}
}

func TestTranscribePassesPlayableWindowFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, loudSeconds(3)...)
	opts := testOptions()
	opts.WindowLength = 2 * time.Second

	var frames []int64
	engine := EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		h, err := audio.ReadHeader(w.Path)
		if err != nil {
			return "", err
		}
		frames = append(frames, h.Frames)
		return "ok", nil
	})

	if _, err := New(engine, opts, testLogger()).Transcribe(context.Background(), path, nil); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(frames) != 2 || frames[0] != 2*testRate || frames[1] != testRate {
		t.Fatalf("unexpected window sizes %v", frames)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "windows-*"))
	if len(leftovers) != 0 {
		t.Fatalf("window files should be removed, found %v", leftovers)
	}
}

func TestTranscribeReportsProgress(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, true, false, true, true)
	opts := testOptions()
	opts.Workers = 3

	var last, calls int
	progress := func(done, total int) {
		calls++
		if total != 4 || done < last {
			t.Errorf("unexpected progress %d/%d after %d", done, total, last)
		}
		last = done
	}

	if _, err := New(indexEngine(), opts, testLogger()).Transcribe(context.Background(), path, progress); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if calls != 4 || last != 4 {
		t.Fatalf("expected 4 progress calls ending at 4, got %d ending at %d", calls, last)
	}
}

func TestTranscribeAttemptTimeout(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, true, true)
	opts := testOptions()
	opts.Attempts = 1
	opts.Timeout = 20 * time.Millisecond

	engine := EngineFunc(func(ctx context.Context, w WindowAudio) (string, error) {
		if w.Index == 0 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "second", nil
	})

	got, err := New(engine, opts, testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "[unintelligible] second" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if !errors.Is(got.Segments[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on window 0, got %v", got.Segments[0].Err)
	}
}

func TestTranscribeHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, loudSeconds(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	engine := EngineFunc(func(ctx context.Context, _ WindowAudio) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := New(engine, testOptions(), testLogger()).Transcribe(ctx, path, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "windows-*"))
	if len(leftovers) != 0 {
		t.Fatalf("window files should be removed after cancellation, found %v", leftovers)
	}
}

func TestTranscribeDoesNotRetryPermanentErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeWaveform(t, dir, true, true)

	var calls atomic.Int32
	engine := EngineFunc(func(_ context.Context, w WindowAudio) (string, error) {
		calls.Add(1)
		if w.Index == 0 {
			return "", &upstream.Error{StatusCode: 400, Body: "bad audio"}
		}
		return "fine", nil
	})

	got, err := New(engine, testOptions(), testLogger()).Transcribe(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Segments[0].Attempts != 1 {
		t.Fatalf("4xx should not be retried, got %d attempts", got.Segments[0].Attempts)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 engine calls, got %d", n)
	}
}
