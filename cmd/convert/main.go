package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docsmith/internal/docling"
	"docsmith/internal/extractor"
	"docsmith/internal/markdown"
	"docsmith/internal/pack"
	"docsmith/internal/refine"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // Ignore error if .env doesn't exist, flags/env checked below

	doclingURL := flag.String("docling", os.Getenv("DOCLING_SERVER_URL"), "docling server URL (empty = local extraction)")
	refineName := flag.String("refine", os.Getenv("REFINE_PROVIDER"), "refinement provider: ollama, openai, or empty to disable")
	outPath := flag.String("out", "converted.zip", "output archive path")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: convert [-docling URL] [-refine ollama|openai] [-out FILE.zip] file.pdf [file.docx ...]")
		os.Exit(2)
	}

	var refiner refine.Provider
	switch *refineName {
	case "ollama":
		endpoint := os.Getenv("OLLAMA_SERVER_URL")
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		p, err := refine.NewProvider("ollama", endpoint, "", os.Getenv("OLLAMA_MODEL"))
		if err != nil {
			log.Fatalf("Failed to configure ollama: %v", err)
		}
		refiner = p
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required for -refine openai")
		}
		p, err := refine.NewProvider("openai", "", key, "")
		if err != nil {
			log.Fatalf("Failed to configure openai: %v", err)
		}
		refiner = p
	case "":
	default:
		log.Fatalf("Unknown refine provider %q", *refineName)
	}

	workDir, err := os.MkdirTemp("", "docsmith-convert-")
	if err != nil {
		log.Fatalf("Failed to create work dir: %v", err)
	}
	defer os.RemoveAll(workDir)

	ctx := context.Background()
	start := time.Now()
	var docNames []string

	for _, path := range files {
		name := filepath.Base(path)
		fmt.Printf("Converting %s...\n", name)

		title := strings.TrimSuffix(name, filepath.Ext(name))
		md, images, err := convertOne(ctx, *doclingURL, path, title)
		if err != nil {
			log.Printf("Failed to convert %s: %v", name, err)
			continue
		}

		if refiner != nil {
			refined, ok := refine.RefineOrFallback(ctx, refiner, md)
			if !ok {
				fmt.Printf("Refinement failed for %s, keeping normalized markdown\n", name)
				md = refine.AnnotateFallback(md)
			} else {
				md = refined
			}
		}

		if err := pack.WriteDocument(workDir, title, md, images); err != nil {
			log.Printf("Failed to write %s: %v", title, err)
			continue
		}

		fmt.Printf("Converted %s: %d images\n", name, len(images))
		docNames = append(docNames, title)
	}

	if len(docNames) == 0 {
		log.Fatal("No documents could be converted")
	}

	if err := pack.WriteIndex(workDir, docNames); err != nil {
		log.Fatalf("Failed to write index: %v", err)
	}
	if err := pack.CreateArchive(workDir, *outPath); err != nil {
		log.Fatalf("Failed to create archive: %v", err)
	}

	fmt.Printf("Finished in %v: %d/%d documents -> %s\n", time.Since(start), len(docNames), len(files), *outPath)
}

// convertOne extracts a file to markdown, collects its images and normalizes
// the result. Same per-file pipeline the server runs.
func convertOne(ctx context.Context, doclingURL, path, title string) (string, map[string][]byte, error) {
	images := make(map[string][]byte)
	var md string

	if doclingURL != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", nil, err
		}
		res, err := docling.NewClient(doclingURL).Convert(ctx, filepath.Base(path), content)
		if err != nil {
			return "", nil, err
		}

		stripped, inline, _, inlineCount := markdown.ExtractInlineImages(res.Markdown)
		md = stripped
		for name, data := range inline {
			images[name] = data
		}
		if len(res.Images) > 0 {
			// Continue from the consumed count, not len(inline): a failed
			// inline decode owns its number without owning a file.
			imageMap, named := nameReferencedImages(res.Images, inlineCount+1)
			md = markdown.Relink(md, imageMap)
			for name, data := range named {
				images[name] = data
			}
		}
	} else {
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			md, err = extractor.ExtractPDF(path)
		case ".docx":
			md, err = extractor.ExtractDOCX(path)
		case ".md", ".markdown", ".txt":
			var data []byte
			data, err = os.ReadFile(path)
			if err == nil {
				stripped, inline, _, _ := markdown.ExtractInlineImages(string(data))
				md = stripped
				for name, img := range inline {
					images[name] = img
				}
			}
		default:
			err = fmt.Errorf("unsupported file type (use -docling for anything beyond pdf/docx/md)")
		}
		if err != nil {
			return "", nil, err
		}
	}

	return markdown.Normalize(md, title), images, nil
}

// nameReferencedImages assigns sequential image_NNN names to server-provided
// images, preserving the original extension.
func nameReferencedImages(src map[string][]byte, startAt int) (map[string]string, map[string][]byte) {
	originals := make([]string, 0, len(src))
	for name := range src {
		originals = append(originals, name)
	}
	sort.Strings(originals)

	imageMap := make(map[string]string, len(src))
	named := make(map[string][]byte, len(src))
	counter := startAt
	for _, orig := range originals {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(orig)), ".")
		if ext == "" {
			ext = "png"
		}
		if ext == "jpeg" {
			ext = "jpg"
		}
		newName := fmt.Sprintf("image_%03d.%s", counter, ext)
		counter++
		imageMap[orig] = "images/" + newName
		named[newName] = src[orig]
	}
	return imageMap, named
}
