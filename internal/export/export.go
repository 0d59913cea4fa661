// Package export renders a transcript and its summary as downloadable documents.
// Rendering is pure: identical input gives byte-identical output.
package export

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"recap/internal/apperr"
)

type Format string

const (
	FormatTXT      Format = "txt"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
)

const (
	reportTitle     = "TRANSCRIPT SUMMARY REPORT"
	maxFileNameLen  = 200
	defaultFileName = "untitled"
)

var invalidFileNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

func Formats() []Format {
	return []Format{FormatTXT, FormatPDF, FormatMarkdown}
}

// ParseFormat accepts a format name or extension in any case, with or without
// the leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatTXT, FormatPDF, FormatMarkdown:
		return f, nil
	case "markdown":
		return FormatMarkdown, nil
	}
	return "", apperr.Newf(apperr.KindExport, "unknown export format %q", s)
}

func ContentType(f Format) string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export renders transcript and summary in format. The transcript must not be
// blank; an empty summary is allowed so partial results can still be saved.
func Export(transcript, summary string, format Format) ([]byte, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, apperr.New(apperr.KindExport, "transcript is empty, nothing to export")
	}
	doc := newDocument(transcript, summary)

	switch format {
	case FormatTXT:
		return []byte(renderText(doc)), nil
	case FormatMarkdown:
		return []byte(renderMarkdown(doc)), nil
	case FormatPDF:
		return renderPDF(doc)
	}
	return nil, apperr.Newf(apperr.KindExport, "unknown export format %q", format)
}

// FileName turns base into a safe file name with the format's extension.
func FileName(base string, format Format) string {
	base = strings.TrimSpace(base)
	name := SanitizeFileName(strings.TrimSuffix(base, filepath.Ext(base)))
	return SanitizeFileName(name + "." + string(format))
}

// SanitizeFileName replaces characters that are invalid in file names, trims
// surrounding dots and spaces and limits the result to 200 characters,
// keeping the extension.
func SanitizeFileName(name string) string {
	name = invalidFileNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		return defaultFileName
	}
	if utf8.RuneCountInString(name) <= maxFileNameLen {
		return name
	}
	ext := filepath.Ext(name)
	stem := []rune(strings.TrimSuffix(name, ext))
	keep := max(maxFileNameLen-utf8.RuneCountInString(ext), 0)
	if keep < len(stem) {
		stem = stem[:keep]
	}
	return string(stem) + ext
}

type document struct {
	transcript string
	summary    string
	stats      Stats
}

type Stats struct {
	TranscriptWords int
	SummaryWords    int
	// Compression is the percentage of words removed by summarization.
	Compression float64
}

func ComputeStats(transcript, summary string) Stats {
	s := Stats{
		TranscriptWords: len(strings.Fields(transcript)),
		SummaryWords:    len(strings.Fields(summary)),
	}
	if s.TranscriptWords > 0 {
		s.Compression = (1 - float64(s.SummaryWords)/float64(s.TranscriptWords)) * 100
	}
	return s
}

func newDocument(transcript, summary string) document {
	transcript = strings.TrimSpace(transcript)
	summary = strings.TrimSpace(summary)
	return document{transcript: transcript, summary: summary, stats: ComputeStats(transcript, summary)}
}

func (s Stats) lines() []string {
	return []string{
		fmt.Sprintf("Transcript Word Count: %d", s.TranscriptWords),
		fmt.Sprintf("Summary Word Count: %d", s.SummaryWords),
		fmt.Sprintf("Compression Ratio: %.1f%%", s.Compression),
	}
}
