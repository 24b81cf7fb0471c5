package extractor

import (
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// ExtractDOCX extracts the text of a DOCX file as markdown, one paragraph per
// block. The document XML is split on paragraph tags and stripped of markup;
// any formatting beyond paragraph boundaries is lost, which is acceptable for
// the fallback path.
func ExtractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	doc := r.Editable()
	paragraphs := splitDOCXParagraphs(doc.GetContent())

	if len(paragraphs) == 0 {
		return "", fmt.Errorf("no text extracted from docx")
	}

	return strings.Join(paragraphs, "\n\n"), nil
}

// splitDOCXParagraphs splits DOCX XML content by <w:p> paragraph tags
// and strips all XML tags from each paragraph, returning clean text.
func splitDOCXParagraphs(xmlStr string) []string {
	parts := strings.Split(xmlStr, "<w:p")
	var paragraphs []string

	for _, part := range parts {
		cleaned := strings.TrimSpace(stripTags(part))
		if cleaned != "" {
			paragraphs = append(paragraphs, cleaned)
		}
	}

	return paragraphs
}

func stripTags(xmlStr string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range xmlStr {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
