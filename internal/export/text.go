package export

import "strings"

const summaryPlaceholder = "(no summary available)"

func renderText(doc document) string {
	banner := strings.Repeat("=", 80)
	rule := strings.Repeat("-", 80)
	summary := doc.summary
	if summary == "" {
		summary = summaryPlaceholder
	}

	lines := []string{
		banner,
		reportTitle,
		banner,
		"",
		rule,
		"Summary:",
		rule,
		"",
		summary,
		"",
		rule,
		"Transcript:",
		rule,
		"",
		doc.transcript,
		"",
		rule,
		"Statistics:",
		rule,
	}
	lines = append(lines, doc.stats.lines()...)
	lines = append(lines, "", banner, "")
	return strings.Join(lines, "\n")
}

func renderMarkdown(doc document) string {
	var b strings.Builder
	b.WriteString("# Transcript Summary Report\n\n")
	b.WriteString("## Summary\n\n")
	if doc.summary == "" {
		b.WriteString("_" + summaryPlaceholder + "_\n\n")
	} else {
		b.WriteString(doc.summary + "\n\n")
	}
	b.WriteString("## Transcript\n\n")
	b.WriteString(doc.transcript + "\n\n")
	b.WriteString("## Statistics\n\n")
	for _, line := range doc.stats.lines() {
		b.WriteString("- " + line + "\n")
	}
	return b.String()
}
