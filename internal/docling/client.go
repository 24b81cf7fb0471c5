// Package docling is the HTTP client for an external docling-serve instance,
// which performs OCR and layout extraction and returns markdown.
package docling

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Result is a parsed conversion response. Depending on the server version,
// images arrive either embedded in Markdown as data URIs (Images is empty)
// or as a separate named set of base64 blobs (Images keyed by original name).
type Result struct {
	Markdown string
	Images   map[string][]byte
}

// Client talks to one docling-serve base URL. Construct with NewClient;
// the URL is explicit configuration, never a package-level default.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the given server URL. Conversion of large
// scanned documents is slow, so the request timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
}

// Convert uploads a file for OCR + layout extraction and returns the
// resulting markdown and any separately-returned images. An empty markdown
// result is an error: the caller skips that document and continues the batch.
func (c *Client) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}

	// OCR and table structure on for best layout fidelity; embedded image
	// export so picture data survives the round trip.
	fields := map[string]string{
		"do_ocr":             "true",
		"do_table_structure": "true",
		"image_export_mode":  "embedded",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := c.baseURL + "/v1/convert/file"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	log.Printf("Docling: converting %s via %s", filename, url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docling request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("docling returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	result, err := parseConvertResponse(body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Markdown) == "" {
		return nil, fmt.Errorf("docling returned no markdown for %s", filename)
	}
	return result, nil
}

// parseConvertResponse handles both known response shapes:
//
//	official docling-serve: {"document": {"md_content": "..."}}
//	legacy server:          {"markdown": "...", "images": {"name": "<base64>"}}
//	                     or {"document": {"markdown": "..."}}
func parseConvertResponse(body []byte) (*Result, error) {
	var payload struct {
		Markdown string            `json:"markdown"`
		Images   map[string]string `json:"images"`
		Document struct {
			MDContent string `json:"md_content"`
			Markdown  string `json:"markdown"`
		} `json:"document"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse docling response: %w", err)
	}

	md := payload.Document.MDContent
	if md == "" {
		md = payload.Markdown
	}
	if md == "" {
		md = payload.Document.Markdown
	}

	result := &Result{Markdown: md}
	if len(payload.Images) > 0 {
		result.Images = make(map[string][]byte, len(payload.Images))
		for name, enc := range payload.Images {
			data, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				log.Printf("Docling: skipping image %s: base64 decode failed: %v", name, err)
				continue
			}
			result.Images[name] = data
		}
	}
	return result, nil
}

// Probe reports whether the docling server is reachable. The /ui page serves
// a "Docling Serve" banner; older builds answer on the root path instead.
func (c *Client) Probe(ctx context.Context) bool {
	for _, path := range []string{"/ui", ""} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			continue
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK &&
			(strings.Contains(string(body), "Docling Serve") || strings.Contains(string(body), "Swagger")) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
