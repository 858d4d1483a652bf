package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/openkala/callboard/internal/metrics"
)

const defaultCooldown = 20 * time.Second

// runner drives the retry loop shared by every provider adapter:
// credential rotation, rate-limit cooldowns, capped exponential backoff,
// and retry-from-resolution after model-not-found responses.
type runner struct {
	provider    string
	keys        *KeyRing
	maxAttempts int
	maxWaits    int           // exhausted-credential waits before giving up
	waitForKeys time.Duration // pause before clearing all cooldowns
	baseBackoff time.Duration
	maxBackoff  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRunner(provider string, keys *KeyRing, attempts int) runner {
	return runner{
		provider:    provider,
		keys:        keys,
		maxAttempts: attempts,
		maxWaits:    2,
		waitForKeys: 2 * time.Second,
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run executes attempt until success, attempt exhaustion, or context
// cancellation. attempt receives the API key of the picked credential.
func (r *runner) run(ctx context.Context, attempt func(ctx context.Context, key string) (*Result, error)) (*Result, error) {
	if r.keys.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", r.provider, ErrNoCredentials)
	}

	var lastErr error
	waits := 0
	for att := 0; att < r.maxAttempts; att++ {
		cred := r.keys.Pick()
		if cred == nil {
			if waits >= r.maxWaits {
				break
			}
			waits++
			log.Printf("[%s] all credentials cooling down, waiting %s before reset (%d/%d)",
				r.provider, r.waitForKeys, waits, r.maxWaits)
			if err := r.sleep(ctx, r.waitForKeys); err != nil {
				return nil, err
			}
			r.keys.ResetAll()
			att-- // the wait is not an attempt
			continue
		}

		res, err := attempt(ctx, cred.Key)
		if err == nil {
			metrics.InferenceRequests.WithLabelValues(r.provider, "ok").Inc()
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusServiceUnavailable):
			cool := apiErr.RetryAfter
			if cool <= 0 {
				cool = defaultCooldown
			}
			r.keys.MarkCooldown(cred, cool)
			metrics.CredentialCooldowns.WithLabelValues(r.provider).Inc()
			metrics.InferenceRequests.WithLabelValues(r.provider, "rate_limited").Inc()

			wait := r.backoff(att)
			if apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			log.Printf("[%s] rate limited (status %d), key on cooldown, backing off %s",
				r.provider, apiErr.StatusCode, wait)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
			// The adapter invalidated its resolver before returning; the
			// next attempt re-resolves.
			metrics.InferenceRequests.WithLabelValues(r.provider, "model_not_found").Inc()
			log.Printf("[%s] model not found, re-resolving on next attempt", r.provider)
		default:
			metrics.InferenceRequests.WithLabelValues(r.provider, "error").Inc()
			log.Printf("[%s] attempt %d/%d failed: %v", r.provider, att+1, r.maxAttempts, err)
			if err := r.sleep(ctx, r.backoff(att)); err != nil {
				return nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no credentials available")
	}
	return nil, fmt.Errorf("%s: attempts exhausted: %w", r.provider, lastErr)
}

func (r *runner) backoff(attempt int) time.Duration {
	d := r.baseBackoff * (1 << uint(attempt))
	if d > r.maxBackoff {
		d = r.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	return d + jitter
}
