package ai

import (
	"strings"
	"sync"
	"time"
)

// Credential is one provider API key plus its rotation bookkeeping.
type Credential struct {
	Key           string
	lastUsed      time.Time
	cooldownUntil time.Time
}

// KeyRing rotates a fixed set of API keys. Pick prefers the key used
// longest ago among those not cooling down after a rate-limit response,
// so repeated picks round-robin by recency rather than by fixed order.
type KeyRing struct {
	mu    sync.Mutex
	creds []*Credential
	now   func() time.Time
}

func NewKeyRing(keys []string) *KeyRing {
	ring := &KeyRing{now: time.Now}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		ring.creds = append(ring.creds, &Credential{Key: k})
	}
	return ring
}

func (r *KeyRing) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds)
}

// Pick returns the least recently used credential that is off cooldown and
// stamps it as used now. Returns nil when every key is cooling down.
func (r *KeyRing) Pick() *Credential {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var best *Credential
	for _, c := range r.creds {
		if c.cooldownUntil.After(now) {
			continue
		}
		if best == nil || c.lastUsed.Before(best.lastUsed) {
			best = c
		}
	}
	if best != nil {
		best.lastUsed = now
	}
	return best
}

// MarkCooldown benches the credential until now+d. Used after 429/503.
func (r *KeyRing) MarkCooldown(c *Credential, d time.Duration) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.cooldownUntil = r.now().Add(d)
}

// ResetAll clears every cooldown. Called when all keys are benched and the
// caller has waited out the global rate limit.
func (r *KeyRing) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		c.cooldownUntil = time.Time{}
	}
}

// CoolingDown reports whether the credential is currently benched.
func (r *KeyRing) CoolingDown(c *Credential) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.cooldownUntil.After(r.now())
}
