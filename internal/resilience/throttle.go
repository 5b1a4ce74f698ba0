package resilience

import (
	"fmt"
	"sync"
)

// SignatureThrottle caps repeated attempts at work that keeps failing
// the same way. Each distinct signature gets a fixed number of
// failures; once spent, Allow reports false for the rest of the
// process lifetime. Callers build signatures from whatever identifies
// the work, typically a source id plus an error class.
type SignatureThrottle struct {
	mu       sync.Mutex
	failures map[string]int
	max      int
}

// NewSignatureThrottle creates a throttle allowing max failures per
// signature. Non-positive max falls back to 3.
func NewSignatureThrottle(max int) *SignatureThrottle {
	if max <= 0 {
		max = 3
	}
	return &SignatureThrottle{
		failures: make(map[string]int),
		max:      max,
	}
}

// Signature joins identifying parts into a stable throttle key.
func Signature(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "|"
		}
		key += p
	}
	return key
}

// Allow reports whether work with this signature may still be attempted.
func (t *SignatureThrottle) Allow(signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures[signature] < t.max
}

// Fail records one failed attempt for the signature.
func (t *SignatureThrottle) Fail(signature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[signature]++
}

// Failures returns the recorded failure count for a signature.
func (t *SignatureThrottle) Failures(signature string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures[signature]
}

// Exhausted lists signatures that have spent their attempt budget,
// for logging at shutdown.
func (t *SignatureThrottle) Exhausted() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for sig, n := range t.failures {
		if n >= t.max {
			out = append(out, sig)
		}
	}
	return out
}

// String describes the throttle state for diagnostics.
func (t *SignatureThrottle) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("throttle(max=%d, tracked=%d)", t.max, len(t.failures))
}
