package pack

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ========== WriteDocument ==========

func TestWriteDocument_MarkdownAndImages(t *testing.T) {
	dir := t.TempDir()

	images := map[string][]byte{
		"image_001.png": []byte("png-bytes"),
		"image_002.jpg": []byte("jpg-bytes"),
	}
	if err := WriteDocument(dir, "report", "# Report\n\nbody", images); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	md, err := os.ReadFile(filepath.Join(dir, "report", "document.md"))
	if err != nil {
		t.Fatalf("document.md not written: %v", err)
	}
	if string(md) != "# Report\n\nbody" {
		t.Errorf("markdown = %q", md)
	}

	img, err := os.ReadFile(filepath.Join(dir, "report", "images", "image_001.png"))
	if err != nil {
		t.Fatalf("image not written: %v", err)
	}
	if string(img) != "png-bytes" {
		t.Errorf("image bytes = %q", img)
	}
}

func TestWriteDocument_NoImagesNoImagesDir(t *testing.T) {
	dir := t.TempDir()

	if err := WriteDocument(dir, "plain", "text", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "plain", "images")); !os.IsNotExist(err) {
		t.Error("images dir should not exist for image-less document")
	}
}

// ========== WriteIndex ==========

func TestWriteIndex_LinksAllDocuments(t *testing.T) {
	dir := t.TempDir()

	if err := WriteIndex(dir, []string{"beta", "alpha"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatalf("index.md not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[alpha](alpha/document.md)") ||
		!strings.Contains(content, "[beta](beta/document.md)") {
		t.Errorf("index content = %q", content)
	}
	// Sorted output regardless of input order.
	if strings.Index(content, "alpha") > strings.Index(content, "beta") {
		t.Errorf("index not sorted: %q", content)
	}
}

// ========== CreateArchive ==========

func TestCreateArchive_PreservesRelativePaths(t *testing.T) {
	src := t.TempDir()
	if err := WriteDocument(src, "doc", "# Doc", map[string][]byte{"image_001.png": []byte("x")}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	if err := CreateArchive(src, zipPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"doc/document.md", "doc/images/image_001.png"} {
		if !names[want] {
			t.Errorf("archive missing entry %s (has %v)", want, names)
		}
	}
}

func TestCreateArchive_BadTarget(t *testing.T) {
	src := t.TempDir()
	if err := CreateArchive(src, filepath.Join(src, "no", "such", "dir", "out.zip")); err == nil {
		t.Error("expected error for unwritable zip path")
	}
}
