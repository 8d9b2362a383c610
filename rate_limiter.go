// rate_limiter.go
// ----------------
// This file defines the RateLimiter type, which remembers when a backend asked
// us to back off. A 429 or 503 response carrying Retry-After records a reset time
// for that backend; the RequestExecutor waits for it before the next attempt so a
// struggling backend is not hammered by the whole dashboard at once.
//
// Responsibilities:
// - Storing reset times keyed by backend base URL.
// - Checking if requests can proceed immediately.
// - Calculating the delay before the next allowed request.
package backendbridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/opengovern/backend-bridge/internal"
)

type RateLimiter struct {
	mu     sync.Mutex
	resets map[string]time.Time
	now    func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		resets: make(map[string]time.Time),
		now:    time.Now,
	}
}

// UpdateFromResponse records the Retry-After hint of a throttling response.
// Responses with other statuses or without a usable header are ignored.
func (r *RateLimiter) UpdateFromResponse(backend string, resp *NormalizedResponse) {
	if resp == nil {
		return
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return
	}
	now := r.now()
	wait, ok := internal.ParseRetryAfter(resp.Headers["retry-after"], now)
	if !ok || wait <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reset := now.Add(wait)
	if cur, ok := r.resets[backend]; !ok || reset.After(cur) {
		r.resets[backend] = reset
	}
}

// canProceed reports whether backend has no pending reset.
func (r *RateLimiter) canProceed(backend string) bool {
	return r.delayBeforeNextRequest(backend) == 0
}

// delayBeforeNextRequest is how long callers must wait before hitting backend again.
func (r *RateLimiter) delayBeforeNextRequest(backend string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	reset, ok := r.resets[backend]
	if !ok {
		return 0
	}
	if d := reset.Sub(r.now()); d > 0 {
		return d
	}
	delete(r.resets, backend)
	return 0
}

// ResetAt returns the pending reset time for backend, if any.
func (r *RateLimiter) ResetAt(backend string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.resets[backend]
	if !ok || !t.After(r.now()) {
		return time.Time{}, false
	}
	return t, true
}
