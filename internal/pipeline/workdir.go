package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const runDirPrefix = "run-"

func (s *Service) createRunDir(id string) (string, error) {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dir := filepath.Join(s.workDir, runDirPrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

func (s *Service) removeRunDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("run_dir_cleanup_failed", "dir", dir, "error", err)
	}
}

// SweepStaleRuns removes run directories under dir last modified more than
// maxAge ago. They are left behind only when a process dies mid-run.
func SweepStaleRuns(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
