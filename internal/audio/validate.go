package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"recap/internal/apperr"
)

// ValidateSource checks an on-disk upload before it enters the pipeline.
func ValidateSource(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a file: %s", path)
	}
	ext := filepath.Ext(path)
	if NormalizeFormat(ext) == "" {
		return apperr.Newf(apperr.KindUnsupportedFormat, "unsupported format %q", ext)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("file too large: %.1fMB (max: %.0fMB)", float64(info.Size())/(1<<20), float64(maxBytes)/(1<<20))
	}
	return nil
}
