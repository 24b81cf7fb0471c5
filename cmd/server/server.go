package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"

	"docsmith/internal/crypto"
	"docsmith/internal/job"
	"docsmith/internal/refine"
	"docsmith/internal/search"
)

// Server holds all shared state.
type Server struct {
	mu            sync.RWMutex
	jobs          *job.Store
	index         *search.Index
	convertStatus *ConvertStatus
	convertCancel context.CancelFunc // cancels the active conversion goroutine

	doclingURL     string
	refineProvider string // "ollama", "openai", or "" (refinement disabled)
	ollamaURL      string
	ollamaModel    string
	openAIKey      string
	outputDir      string
}

// ConvertStatus is polled by the frontend (and pushed over the websocket)
// to show progress of the active conversion.
type ConvertStatus struct {
	mu          sync.RWMutex
	JobID       string       `json:"job_id,omitempty"`
	Phase       string       `json:"phase"` // idle, processing, packaging, done, error, cancelled
	FilesTotal  int          `json:"files_total"`
	FilesDone   int          `json:"files_done"`
	ZipName     string       `json:"zip_name,omitempty"`
	Error       string       `json:"error,omitempty"`
	FileResults []FileResult `json:"file_results,omitempty"`
}

// FileResult tracks per-file conversion outcome.
type FileResult struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"` // "ok" or "failed"
	Error    string   `json:"error,omitempty"`
	Images   int      `json:"images"`
	Refined  bool     `json:"refined"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *ConvertStatus) snapshot() ConvertStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ConvertStatus{
		JobID:       s.JobID,
		Phase:       s.Phase,
		FilesTotal:  s.FilesTotal,
		FilesDone:   s.FilesDone,
		ZipName:     s.ZipName,
		Error:       s.Error,
		FileResults: s.FileResults,
	}
}

func (s *ConvertStatus) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JobID = ""
	s.Phase = "idle"
	s.FilesTotal = 0
	s.FilesDone = 0
	s.ZipName = ""
	s.Error = ""
	s.FileResults = nil
}

// tryClaim atomically reserves the status struct for a new conversion and
// clears the previous run's fields. Returns false when a conversion is
// already active; check and phase transition happen under one lock so two
// concurrent starts cannot both pass the gate.
func (s *ConvertStatus) tryClaim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase == "processing" || s.Phase == "packaging" {
		return false
	}
	s.JobID = ""
	s.Phase = "processing"
	s.FilesTotal = 0
	s.FilesDone = 0
	s.ZipName = ""
	s.Error = ""
	s.FileResults = nil
	return true
}

// terminal reports whether a phase will no longer change.
func terminal(phase string) bool {
	return phase == "done" || phase == "error" || phase == "cancelled"
}

// refiner builds a refinement provider from current settings, or nil when
// refinement is disabled or unconfigured.
func (s *Server) refiner() refine.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.refineProvider {
	case "ollama":
		p, err := refine.NewProvider("ollama", s.ollamaURL, "", s.ollamaModel)
		if err != nil {
			log.Printf("Warning: ollama refiner unavailable: %v", err)
			return nil
		}
		return p
	case "openai":
		if s.openAIKey == "" {
			log.Printf("Warning: refine provider is openai but no API key is configured")
			return nil
		}
		p, err := refine.NewProvider("openai", "", s.openAIKey, "")
		if err != nil {
			log.Printf("Warning: openai refiner unavailable: %v", err)
			return nil
		}
		return p
	}
	return nil
}

// ========== Settings Persistence ==========

const settingsFile = "data/settings.json"

type SavedSettings struct {
	DoclingURL     string `json:"docling_url"`
	RefineProvider string `json:"refine_provider"`
	OllamaURL      string `json:"ollama_url"`
	OllamaModel    string `json:"ollama_model"`
	OpenAIKey      string `json:"openai_key"`
}

func loadSavedSettings() *SavedSettings {
	data, err := os.ReadFile(settingsFile)
	if err != nil {
		return nil
	}
	var s SavedSettings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("Warning: could not parse %s: %v", settingsFile, err)
		return nil
	}

	// Decrypt API key field (backward-compatible: if decryption fails, use raw value)
	s.OpenAIKey = decryptOrPassthrough(s.OpenAIKey)
	return &s
}

// decryptOrPassthrough tries to decrypt a value; if it fails (e.g. legacy
// plaintext), returns the original value unchanged.
func decryptOrPassthrough(val string) string {
	if val == "" {
		return ""
	}
	decrypted, err := crypto.Decrypt(val)
	if err != nil {
		return val
	}
	return decrypted
}

func persistSettings(s SavedSettings) error {
	_ = os.MkdirAll("data", 0755)

	// Encrypt the API key before writing to disk
	toSave := s
	var err error
	if toSave.OpenAIKey, err = crypto.Encrypt(s.OpenAIKey); err != nil {
		log.Printf("Warning: failed to encrypt OpenAI key: %v", err)
		toSave.OpenAIKey = s.OpenAIKey
	}

	data, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(settingsFile, data, 0644)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
