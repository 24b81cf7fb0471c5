// Package pack assembles conversion output into an importable package:
// one directory per document with its markdown and images, an index file,
// and a zip archive of the whole tree.
package pack

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteDocument writes one converted document under processedDir:
//
//	<processedDir>/<docName>/document.md
//	<processedDir>/<docName>/images/<file>   (one per extracted image)
//
// The markdown is expected to already reference images by their
// package-relative paths (images/...).
func WriteDocument(processedDir, docName, markdown string, images map[string][]byte) error {
	docDir := filepath.Join(processedDir, docName)
	if err := os.MkdirAll(docDir, 0755); err != nil {
		return fmt.Errorf("failed to create document dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(docDir, "document.md"), []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}

	if len(images) == 0 {
		return nil
	}

	imagesDir := filepath.Join(docDir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return fmt.Errorf("failed to create images dir: %w", err)
	}
	for name, data := range images {
		if err := os.WriteFile(filepath.Join(imagesDir, name), data, 0644); err != nil {
			return fmt.Errorf("failed to write image %s: %w", name, err)
		}
	}
	return nil
}

// WriteIndex writes a synthetic root index.md linking every converted
// document, so wiki importers get a landing page for the batch.
func WriteIndex(processedDir string, docNames []string) error {
	sorted := make([]string, len(docNames))
	copy(sorted, docNames)
	sort.Strings(sorted)

	var sb strings.Builder
	sb.WriteString("# Converted Documents\n\n")
	for _, name := range sorted {
		fmt.Fprintf(&sb, "- [%s](%s/document.md)\n", name, name)
	}

	return os.WriteFile(filepath.Join(processedDir, "index.md"), []byte(sb.String()), 0644)
}

// CreateArchive zips the contents of sourceDir into zipPath (deflate),
// preserving paths relative to sourceDir.
func CreateArchive(sourceDir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		// Zip entries always use forward slashes.
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}

	return zw.Close()
}
