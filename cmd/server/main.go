package main

import (
	"log"
	"net/http"
	"os"

	"docsmith/internal/job"
	"docsmith/internal/search"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	doclingURL := os.Getenv("DOCLING_SERVER_URL")
	refineProvider := os.Getenv("REFINE_PROVIDER") // "ollama", "openai", or "" (disabled)
	ollamaURL := os.Getenv("OLLAMA_SERVER_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	ollamaModel := os.Getenv("OLLAMA_MODEL")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	outputDir := os.Getenv("OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "data/output"
	}

	// Saved settings override env
	if saved := loadSavedSettings(); saved != nil {
		log.Printf("Loading saved settings from %s", settingsFile)
		if saved.DoclingURL != "" {
			doclingURL = saved.DoclingURL
		}
		if saved.RefineProvider != "" {
			refineProvider = saved.RefineProvider
		}
		if saved.OllamaURL != "" {
			ollamaURL = saved.OllamaURL
		}
		if saved.OllamaModel != "" {
			ollamaModel = saved.OllamaModel
		}
		if saved.OpenAIKey != "" {
			openAIKey = saved.OpenAIKey
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	jobs, err := job.NewStore("data/jobs")
	if err != nil {
		log.Fatalf("Failed to init job store: %v", err)
	}

	index, err := search.Open("data/search.index")
	if err != nil {
		log.Fatalf("Failed to open search index: %v", err)
	}
	defer index.Close()

	srv := &Server{
		jobs:           jobs,
		index:          index,
		convertStatus:  &ConvertStatus{Phase: "idle"},
		doclingURL:     doclingURL,
		refineProvider: refineProvider,
		ollamaURL:      ollamaURL,
		ollamaModel:    ollamaModel,
		openAIKey:      openAIKey,
		outputDir:      outputDir,
	}

	if doclingURL == "" {
		log.Printf("No docling server configured: PDFs and DOCX files will be converted locally (text only)")
	} else {
		log.Printf("Using docling server at %s", doclingURL)
	}
	switch refineProvider {
	case "ollama":
		log.Printf("Refinement: ollama at %s (model %q)", ollamaURL, ollamaModel)
	case "openai":
		log.Printf("Refinement: openai (key configured: %v)", openAIKey != "")
	default:
		log.Printf("Refinement: disabled")
	}

	mux := http.NewServeMux()

	// Conversion endpoints
	mux.HandleFunc("/api/convert", srv.handleConvert)
	mux.HandleFunc("/api/convert/status", srv.handleConvertStatus)
	mux.HandleFunc("/api/convert/ws", srv.handleConvertWS)
	mux.HandleFunc("/api/convert/cancel", srv.handleCancelConvert)

	// Job & result endpoints
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/delete", srv.handleDeleteJob)
	mux.HandleFunc("/api/download/", srv.handleDownload)
	mux.HandleFunc("/api/search", srv.handleSearch)

	// Configuration endpoints
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/settings", srv.handleSettings)

	// Static files
	mux.Handle("/", http.FileServer(http.Dir("web")))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Docsmith server starting on http://localhost:%s", port)
	if err := http.ListenAndServe(":"+port, corsMiddleware(mux)); err != nil {
		log.Fatal(err)
	}
}
