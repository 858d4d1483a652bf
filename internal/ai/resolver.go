package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ResolvedModel is a provider model selection pinned to an endpoint version.
type ResolvedModel struct {
	Name    string
	Version string // API version path segment, e.g. "v1beta"
}

// ModelResolver discovers which of the preferred models the provider
// currently serves. The selection is memoized for the process lifetime;
// call sites that see a model-not-found response must Invalidate so the
// next call re-discovers. A listing failure falls back to the last known
// good pair without memoizing, so discovery is retried later.
type ModelResolver struct {
	BaseURL    string
	Priority   []string      // descending preference
	Marker     string        // capability substring accepted when nothing in Priority is listed
	Fallback   ResolvedModel // last known good
	HTTPClient *http.Client

	mu       sync.Mutex
	resolved *ResolvedModel
}

// NewGeminiResolver returns a resolver for the Gemini model listing.
func NewGeminiResolver() *ModelResolver {
	return &ModelResolver{
		BaseURL: geminiBaseURL,
		Priority: []string{
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
			"gemini-1.5-flash",
			"gemini-1.5-flash-8b",
			"gemini-1.5-pro",
		},
		Marker:     "flash",
		Fallback:   ResolvedModel{Name: "gemini-1.5-flash", Version: "v1beta"},
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type modelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Resolve returns the memoized selection or performs discovery.
func (r *ModelResolver) Resolve(ctx context.Context, apiKey string) (ResolvedModel, error) {
	r.mu.Lock()
	if r.resolved != nil {
		m := *r.resolved
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	names, err := r.listModels(ctx, apiKey)
	if err != nil || len(names) == 0 {
		log.Printf("[Resolver] model listing unavailable (%v), falling back to %s", err, r.Fallback.Name)
		return r.Fallback, nil
	}

	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[strings.TrimPrefix(n, "models/")] = true
	}

	pick := ""
	for _, want := range r.Priority {
		if available[want] {
			pick = want
			break
		}
	}
	if pick == "" && r.Marker != "" {
		for _, n := range names {
			n = strings.TrimPrefix(n, "models/")
			if strings.Contains(n, r.Marker) {
				pick = n
				break
			}
		}
	}
	if pick == "" {
		log.Printf("[Resolver] no preferred model listed, falling back to %s", r.Fallback.Name)
		return r.Fallback, nil
	}

	m := ResolvedModel{Name: pick, Version: "v1beta"}
	r.mu.Lock()
	r.resolved = &m
	r.mu.Unlock()
	log.Printf("[Resolver] resolved model %s (%s)", m.Name, m.Version)
	return m, nil
}

// Invalidate drops the memoized selection, forcing re-discovery.
func (r *ModelResolver) Invalidate() {
	r.mu.Lock()
	r.resolved = nil
	r.mu.Unlock()
}

func (r *ModelResolver) listModels(ctx context.Context, apiKey string) ([]string, error) {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", strings.TrimRight(r.BaseURL, "/"), apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model listing returned status %d", resp.StatusCode)
	}

	var parsed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model listing: %w", err)
	}

	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
