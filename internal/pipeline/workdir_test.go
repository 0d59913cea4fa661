package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepStaleRuns(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)

	mk := func(name string, modTime time.Time) string {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Join(p, "nested"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, modTime, modTime); err != nil {
			t.Fatal(err)
		}
		return p
	}
	stale := mk("run-stale", old)
	fresh := mk("run-fresh", time.Now())
	other := mk("keep-me", old)

	removed, err := SweepStaleRuns(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleRuns() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale run should be removed")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should survive: %v", p, err)
		}
	}
}

func TestSweepStaleRunsMissingDir(t *testing.T) {
	removed, err := SweepStaleRuns(filepath.Join(t.TempDir(), "missing"), time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("expected no-op, got %d, %v", removed, err)
	}
}
