// Package refine sends normalized markdown through an external language model
// for stylistic cleanup. Refinement is strictly best-effort: any failure,
// empty output, or suspicious content change falls back to the input text.
package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// instructionPrompt is the fixed system instruction for the refinement pass.
// The model must not touch image paths — the pipeline has already rewritten
// them to their final package-relative locations.
const instructionPrompt = `You are a technical editor. Rework this raw markdown for an IT wiki:
- Code blocks: detect shell commands, JSON configs and scripts. Wrap them in ` + "```" + ` fences with a language ID.
- Inline tech: put paths, IPs and hostnames in backticks.
- Header cleanup: remove page numbers, company headers and footers.
- Structure: produce a clean heading hierarchy starting at #.
- Images: keep the placeholders ![...](images/image_xxx.ext) EXACTLY at their semantic position. Do NOT change image paths.
Output: return ONLY the corrected markdown, no introduction, no commentary.`

// Provider is one LLM backend capable of refining a markdown document.
type Provider interface {
	Refine(ctx context.Context, markdown string) (string, error)
	Name() string
}

// NewProvider creates the configured refinement backend. endpoint is the
// server URL for ollama; apiKey is the credential for openai. An empty model
// picks a sensible default per provider.
func NewProvider(providerName, endpoint, apiKey, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "ollama", "":
		if model == "" {
			model = "llama3"
		}
		return &OllamaProvider{endpoint: strings.TrimRight(endpoint, "/"), model: model}, nil
	case "openai":
		if model == "" {
			model = openai.GPT4oMini
		}
		return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}, nil
	default:
		return nil, fmt.Errorf("unknown refine provider: %s", providerName)
	}
}

// ==========================================
// Ollama Provider
// ==========================================

type OllamaProvider struct {
	endpoint string
	model    string
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Refine(ctx context.Context, markdown string) (string, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"model":  p.model,
		"prompt": instructionPrompt + "\n\nRaw markdown:\n" + markdown,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.2, // low temp for precision
			"num_ctx":     8192,
		},
	})

	url := p.endpoint + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned %d: %.200s", resp.StatusCode, string(body))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse ollama response: %w", err)
	}
	if strings.TrimSpace(result.Response) == "" {
		return "", fmt.Errorf("ollama returned empty response")
	}
	return result.Response, nil
}

// ==========================================
// OpenAI Provider
// ==========================================

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Refine(ctx context.Context, markdown string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: markdown},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai empty response")
	}
	out := resp.Choices[0].Message.Content
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return out, nil
}

// ==========================================
// Fallback handling
// ==========================================

// RefineOrFallback runs the refinement pass and returns the result, or the
// unmodified input when refinement fails, returns nothing, or drops/adds
// image references. The bool reports whether the refined output was accepted.
//
// The image-count check is the only content verification we can afford: the
// model is instructed to keep image placeholders untouched, but that is not a
// contract, and a refined document that lost an image is worse than an
// unrefined one.
func RefineOrFallback(ctx context.Context, p Provider, markdown string) (string, bool) {
	refined, err := p.Refine(ctx, markdown)
	if err != nil {
		log.Printf("Refinement via %s failed, keeping original text: %v", p.Name(), err)
		return markdown, false
	}

	if got, want := countImageRefs(refined), countImageRefs(markdown); got != want {
		log.Printf("Refinement via %s altered image references (%d -> %d), keeping original text", p.Name(), want, got)
		return markdown, false
	}

	return refined, true
}

// countImageRefs counts package-relative image references.
func countImageRefs(md string) int {
	return strings.Count(md, "](images/")
}

// AnnotateFallback marks a document whose refinement pass fell back to the
// raw conversion output. The note goes after the H1 when there is one, so
// wiki importers that require a leading H1 still accept the file.
func AnnotateFallback(md string) string {
	const banner = "> **Note:** automatic refinement failed; this is the unrefined conversion output."

	if strings.HasPrefix(md, "# ") {
		if i := strings.Index(md, "\n"); i >= 0 {
			return md[:i] + "\n\n" + banner + md[i:]
		}
		return md + "\n\n" + banner
	}
	return banner + "\n\n" + md
}
