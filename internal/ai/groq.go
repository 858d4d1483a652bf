package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// Groq model names. The fast variant serves the relevance filter; the
// quality variant is a capable default for everything else.
const (
	GroqModelQuality = "llama-3.3-70b-versatile"
	GroqModelFast    = "llama-3.1-8b-instant"
)

// GroqClient talks to the Groq chat-completions API (OpenAI-compatible)
// with key rotation. Groq has no web-grounding tool, so Options.WebTool is
// ignored here.
type GroqClient struct {
	BaseURL string
	Model   string

	run   runner
	httpc *http.Client
}

func NewGroqClient(keys []string, model string) *GroqClient {
	if model == "" {
		model = GroqModelQuality
	}
	return &GroqClient{
		BaseURL: groqBaseURL,
		Model:   model,
		run:     newRunner("groq", NewKeyRing(keys), 5),
		httpc:   &http.Client{Timeout: 45 * time.Second},
	}
}

func (c *GroqClient) Name() string { return "groq" }

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponseFormat struct {
	Type string `json:"type"`
}

type groqRequest struct {
	Model          string              `json:"model"`
	Messages       []groqMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *groqResponseFormat `json:"response_format,omitempty"`
}

type groqResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *GroqClient) Complete(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return c.run.run(ctx, func(ctx context.Context, key string) (*Result, error) {
		return c.chat(ctx, key, prompt, opts)
	})
}

func (c *GroqClient) chat(ctx context.Context, key, prompt string, opts Options) (*Result, error) {
	reqBody := groqRequest{
		Model:       c.Model,
		Messages:    []groqMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
	}
	if opts.JSONMode {
		reqBody.ResponseFormat = &groqResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Provider:   "groq",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	var parsed groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices")
	}

	model := parsed.Model
	if model == "" {
		model = c.Model
	}
	return &Result{Text: parsed.Choices[0].Message.Content, Model: model}, nil
}
