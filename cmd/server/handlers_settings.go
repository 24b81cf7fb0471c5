package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docsmith/internal/docling"
)

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		resp := map[string]interface{}{
			"docling_url":     s.doclingURL,
			"refine_provider": s.refineProvider,
			"ollama_url":      s.ollamaURL,
			"ollama_model":    s.ollamaModel,
			"openai_key":      maskKey(s.openAIKey),
		}
		s.mu.RUnlock()
		jsonResp(w, resp)

	case http.MethodPost:
		var req struct {
			DoclingURL     string `json:"docling_url"`
			RefineProvider string `json:"refine_provider"`
			OllamaURL      string `json:"ollama_url"`
			OllamaModel    string `json:"ollama_model"`
			OpenAIKey      string `json:"openai_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.doclingURL = strings.TrimRight(req.DoclingURL, "/")
		s.refineProvider = req.RefineProvider
		if req.OllamaURL != "" {
			s.ollamaURL = strings.TrimRight(req.OllamaURL, "/")
		}
		s.ollamaModel = req.OllamaModel
		// Only update the key if a real (non-masked) value was sent
		if req.OpenAIKey != "" && !strings.Contains(req.OpenAIKey, "...") {
			s.openAIKey = req.OpenAIKey
		}
		saved := SavedSettings{
			DoclingURL:     s.doclingURL,
			RefineProvider: s.refineProvider,
			OllamaURL:      s.ollamaURL,
			OllamaModel:    s.ollamaModel,
			OpenAIKey:      s.openAIKey,
		}
		s.mu.Unlock()

		if err := persistSettings(saved); err != nil {
			log.Printf("Failed to persist settings: %v", err)
		}

		log.Printf("Settings updated: docling=%s, refine=%s", saved.DoclingURL, saved.RefineProvider)
		jsonResp(w, map[string]string{"status": "saved"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus reports collaborator health so the frontend can warn before
// a conversion is attempted.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	doclingURL := s.doclingURL
	refineProvider := s.refineProvider
	s.mu.RUnlock()

	doclingOk := false
	if doclingURL != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		doclingOk = docling.NewClient(doclingURL).Probe(ctx)
	}

	jsonResp(w, map[string]interface{}{
		"docling_configured": doclingURL != "",
		"docling_online":     doclingOk,
		"refine_provider":    refineProvider,
		"refine_configured":  s.refiner() != nil,
		"jobs":               len(s.jobs.List()),
	})
}

// handleSearch looks up converted documents by content.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		jsonErr(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	hits, err := s.index.Search(query, limit)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResp(w, map[string]interface{}{
		"query": query,
		"hits":  hits,
		"count": len(hits),
	})
}
