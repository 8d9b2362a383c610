package backendbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterTracksRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRateLimiter()
	r.now = func() time.Time { return now }

	assert.True(t, r.canProceed("http://b"))

	r.UpdateFromResponse("http://b", &NormalizedResponse{StatusCode: 429, Headers: map[string]string{"retry-after": "10"}})
	assert.False(t, r.canProceed("http://b"))
	assert.Equal(t, 10*time.Second, r.delayBeforeNextRequest("http://b"))
	at, ok := r.ResetAt("http://b")
	assert.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second), at)

	// A shorter hint never shortens an existing reset.
	r.UpdateFromResponse("http://b", &NormalizedResponse{StatusCode: 503, Headers: map[string]string{"retry-after": "1"}})
	assert.Equal(t, 10*time.Second, r.delayBeforeNextRequest("http://b"))

	now = now.Add(11 * time.Second)
	assert.True(t, r.canProceed("http://b"))
	_, ok = r.ResetAt("http://b")
	assert.False(t, ok)
}

func TestRateLimiterIgnoresOtherResponses(t *testing.T) {
	r := NewRateLimiter()
	r.UpdateFromResponse("http://b", nil)
	r.UpdateFromResponse("http://b", &NormalizedResponse{StatusCode: 500, Headers: map[string]string{"retry-after": "10"}})
	r.UpdateFromResponse("http://b", &NormalizedResponse{StatusCode: 429})
	r.UpdateFromResponse("http://b", &NormalizedResponse{StatusCode: 429, Headers: map[string]string{"retry-after": "later"}})
	assert.True(t, r.canProceed("http://b"))
}
