package extractor

import (
	"testing"
)

// ========== stripTags ==========

func TestStripTags_BasicXML(t *testing.T) {
	input := "<w:t>Hello</w:t> <w:t>World</w:t>"
	got := stripTags(input)
	if got != "Hello World" {
		t.Errorf("stripTags = %q, want 'Hello World'", got)
	}
}

func TestStripTags_NoTags(t *testing.T) {
	input := "Just plain text"
	got := stripTags(input)
	if got != input {
		t.Errorf("stripTags = %q, want %q", got, input)
	}
}

func TestStripTags_EmptyString(t *testing.T) {
	if got := stripTags(""); got != "" {
		t.Errorf("stripTags of empty = %q, want empty", got)
	}
}

func TestStripTags_NestedTags(t *testing.T) {
	input := "<root><child>Content</child></root>"
	got := stripTags(input)
	if got != "Content" {
		t.Errorf("stripTags = %q, want 'Content'", got)
	}
}

func TestStripTags_SelfClosingTags(t *testing.T) {
	input := "Text<br/>More"
	got := stripTags(input)
	if got != "TextMore" {
		t.Errorf("stripTags = %q, want 'TextMore'", got)
	}
}

// ========== splitDOCXParagraphs ==========

func TestSplitDOCXParagraphs_TwoParagraphs(t *testing.T) {
	xml := `<w:p><w:t>First paragraph</w:t></w:p><w:p><w:t>Second paragraph</w:t></w:p>`
	got := splitDOCXParagraphs(xml)
	if len(got) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %v", len(got), got)
	}
	if got[0] != "First paragraph" || got[1] != "Second paragraph" {
		t.Errorf("paragraphs = %v", got)
	}
}

func TestSplitDOCXParagraphs_SkipsEmpty(t *testing.T) {
	xml := `<w:p></w:p><w:p><w:t>Only one</w:t></w:p><w:p>   </w:p>`
	got := splitDOCXParagraphs(xml)
	if len(got) != 1 {
		t.Fatalf("expected 1 paragraph, got %d: %v", len(got), got)
	}
	if got[0] != "Only one" {
		t.Errorf("paragraph = %q", got[0])
	}
}

func TestSplitDOCXParagraphs_NoParagraphs(t *testing.T) {
	if got := splitDOCXParagraphs(""); len(got) != 0 {
		t.Errorf("expected no paragraphs, got %v", got)
	}
}

// ========== ExtractPDF ==========

func TestExtractPDF_MissingFile(t *testing.T) {
	if _, err := ExtractPDF("testdata/does-not-exist.pdf"); err == nil {
		t.Error("expected error for missing file")
	}
}

// ========== ExtractDOCX ==========

func TestExtractDOCX_MissingFile(t *testing.T) {
	if _, err := ExtractDOCX("testdata/does-not-exist.docx"); err == nil {
		t.Error("expected error for missing file")
	}
}
