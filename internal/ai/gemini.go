package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiBaseURL    = "https://generativelanguage.googleapis.com"
	geminiEmbedModel = "text-embedding-004"
)

// GeminiClient talks to the Gemini generateContent API with key rotation,
// model discovery, and optional web-grounding search.
type GeminiClient struct {
	BaseURL  string
	Resolver *ModelResolver

	run   runner
	httpc *http.Client
}

func NewGeminiClient(keys []string) *GeminiClient {
	httpc := &http.Client{Timeout: 60 * time.Second}
	resolver := NewGeminiResolver()
	resolver.HTTPClient = httpc
	return &GeminiClient{
		BaseURL:  geminiBaseURL,
		Resolver: resolver,
		run:      newRunner("gemini", NewKeyRing(keys), 4),
		httpc:    httpc,
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools            []geminiTool            `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return c.run.run(ctx, func(ctx context.Context, key string) (*Result, error) {
		model, err := c.Resolver.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		res, err := c.generate(ctx, key, model, prompt, opts)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				c.Resolver.Invalidate()
			}
			return nil, err
		}
		return res, nil
	})
}

func (c *GeminiClient) generate(ctx context.Context, key string, model ResolvedModel, prompt string, opts Options) (*Result, error) {
	temp := opts.Temperature
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{Temperature: &temp},
	}
	// The search tool rejects a forced JSON MIME type; when both are
	// requested the JSON instruction has to live in the prompt.
	if opts.JSONMode && !opts.WebTool {
		reqBody.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if opts.WebTool {
		reqBody.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.BaseURL, "/"), model.Version, model.Name, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	cand := parsed.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	var sources []string
	if cand.GroundingMetadata != nil {
		seen := make(map[string]bool)
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			sources = append(sources, chunk.Web.URI)
		}
	}

	return &Result{Text: text.String(), Sources: sources, Model: model.Name}, nil
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed generates a 768-dim embedding for semantic search, rotating keys
// on rate limits. Simpler loop than run: an embedding is never worth the
// full backoff dance, callers fall back to keyword search.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.run.keys.Size() == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrNoCredentials)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		cred := c.run.keys.Pick()
		if cred == nil {
			break
		}
		vec, err := c.embedOnce(ctx, cred.Key, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusServiceUnavailable) {
			cool := apiErr.RetryAfter
			if cool <= 0 {
				cool = defaultCooldown
			}
			c.run.keys.MarkCooldown(cred, cool)
			continue
		}
		break
	}
	return nil, fmt.Errorf("gemini embed failed: %w", lastErr)
}

func (c *GeminiClient) embedOnce(ctx context.Context, key, text string) ([]float32, error) {
	reqBody := geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s",
		strings.TrimRight(c.BaseURL, "/"), geminiEmbedModel, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	var parsed geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding")
	}
	return parsed.Embedding.Values, nil
}
