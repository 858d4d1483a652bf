package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Temperature presets. Extraction and yes/no classification want
// deterministic output; caption-style text wants some variety.
const (
	TempDeterministic = 0.1
	TempCreative      = 0.7
)

// Options control a single completion request.
type Options struct {
	JSONMode    bool // instruct the provider to emit a pure-JSON response body
	WebTool     bool // enable the provider's web-grounding tool, if it has one
	Temperature float64
}

// Result is one completed inference call.
type Result struct {
	Text    string
	Sources []string // grounding source URLs, populated when the web tool ran
	Model   string   // model that actually served the request
}

// Client is a single-turn completion client for one inference provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts Options) (*Result, error)
}

// ErrNoCredentials means a provider was constructed without API keys.
// Callers must treat this as a configuration error, not a retryable one.
var ErrNoCredentials = errors.New("no API credentials configured")

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration // parsed Retry-After header, 0 when absent
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// retryAfterSeconds parses a Retry-After header carrying whole seconds.
// Date-form values are ignored.
func retryAfterSeconds(h string) time.Duration {
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
