// Package extractor provides local text extraction for PDF and DOCX files.
// It is the fallback path when no docling server is configured: text only,
// no OCR and no images, emitted as plain markdown paragraphs.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF pulls the text layer out of a PDF and returns it as markdown,
// one block per page separated by blank lines. A PDF with no extractable text
// (a scanned document) is an error — local extraction cannot OCR, so the
// caller should point users at a docling server instead.
func ExtractPDF(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	numPages := r.NumPage()

	for pageIndex := 1; pageIndex <= numPages; pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	if len(pages) == 0 {
		name := filepath.Base(filePath)
		return "", fmt.Errorf("no text extracted from %s (scanned PDF? configure a docling server for OCR)", name)
	}

	return strings.Join(pages, "\n\n"), nil
}
