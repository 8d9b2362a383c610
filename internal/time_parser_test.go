package internal

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	d, ok := ParseRetryAfter(" 3 ", time.Now())
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	header := now.Add(90 * time.Second).Format(http.TimeFormat)

	d, ok := ParseRetryAfter(header, now)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	d, ok = ParseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	require.True(t, ok)
	assert.Zero(t, d)
}

func TestParseRetryAfterRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "soon", "-5"} {
		_, ok := ParseRetryAfter(v, time.Now())
		assert.False(t, ok, v)
	}
}

func TestUnixMsToTime(t *testing.T) {
	assert.True(t, UnixMsToTime(0).IsZero())
	assert.Equal(t, int64(1700000000123), UnixMsToTime(1700000000123).UnixMilli())
}
