package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"

	"recap/internal/apperr"
)

const (
	pdfMargin     = 20.0
	pdfLineHeight = 6.0
	pdfFont       = "DejaVu"
)

// DejaVu Sans Condensed as shipped with go-pdf/fpdf.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	bodyFont []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	headingFont []byte
)

var bodyGlyphs = sync.OnceValues(func() (glyphSet, error) {
	return parseGlyphSet(bodyFont)
})

// pdfEpoch is stamped as creation and modification date so renders are reproducible.
var pdfEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

type pdfSection struct {
	heading    string
	paragraphs []string
}

func pdfSections(doc document) []pdfSection {
	summary := doc.summary
	if summary == "" {
		summary = summaryPlaceholder
	}
	return []pdfSection{
		{heading: "Summary:", paragraphs: paragraphs(summary)},
		{heading: "Transcript:", paragraphs: paragraphs(doc.transcript)},
		{heading: "Statistics", paragraphs: doc.stats.lines()},
	}
}

// paragraphs splits body on newlines and collapses whitespace inside each line.
func paragraphs(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// checkGlyphs fails when the report holds text the embedded font cannot draw,
// so nothing is rendered as blank boxes.
func checkGlyphs(sections []pdfSection) error {
	glyphs, err := bodyGlyphs()
	if err != nil {
		return apperr.Wrap(apperr.KindExport, err, "pdf font unavailable")
	}
	for _, s := range sections {
		for _, p := range s.paragraphs {
			if r, missing := glyphs.firstMissing(p); missing {
				return apperr.Newf(apperr.KindExport,
					"pdf font cannot render %q (U+%04X) in %s; export as txt or md instead",
					r, r, strings.TrimSuffix(strings.ToLower(s.heading), ":"))
			}
		}
	}
	return nil
}

func renderPDF(doc document) ([]byte, error) {
	sections := pdfSections(doc)
	if err := checkGlyphs(sections); err != nil {
		return nil, err
	}
	pdf := buildPDF(sections)
	if pdf.Err() {
		return nil, apperr.Wrap(apperr.KindExport, pdf.Error(), "pdf rendering failed")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperr.Wrap(apperr.KindExport, err, "pdf rendering failed")
	}
	return buf.Bytes(), nil
}

func buildPDF(sections []pdfSection) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(pdfFont, "", bodyFont)
	pdf.AddUTF8FontFromBytes(pdfFont, "B", headingFont)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetCreationDate(pdfEpoch)
	pdf.SetModificationDate(pdfEpoch)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Transcript Summary Report", true)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(pdfFont, "B", 20)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 12, "Transcript Summary Report", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	for _, s := range sections {
		section(pdf, s)
	}
	return pdf
}

func section(pdf *fpdf.Fpdf, s pdfSection) {
	pdf.SetFont(pdfFont, "B", 14)
	pdf.SetTextColor(46, 80, 144)
	pdf.CellFormat(0, 10, s.heading, "", 1, "L", false, 0, "")

	pdf.SetFont(pdfFont, "", 11)
	pdf.SetTextColor(0, 0, 0)
	for _, p := range s.paragraphs {
		pdf.MultiCell(0, pdfLineHeight, p, "", "L", false)
	}
	pdf.Ln(4)
}
