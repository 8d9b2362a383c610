// internal/time_parser.go
// ------------------------
// Helpers for turning backend-supplied time hints into durations and timestamps.
//
// Functions:
// - ParseRetryAfter: Convert a Retry-After header ("120" or an HTTP-date) into a wait duration.
// - UnixMsToTime: Convert a millisecond UNIX timestamp (as sent by /health) into a time.Time.
package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter converts a Retry-After value into the wait relative to now.
// It accepts delta-seconds and HTTP-dates. ok is false for empty or unparsable values.
// Dates in the past yield a zero duration.
func ParseRetryAfter(s string, now time.Time) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if sec, err := strconv.Atoi(s); err == nil {
		if sec < 0 {
			return 0, false
		}
		return time.Duration(sec) * time.Second, true
	}

	at, err := http.ParseTime(s)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

// UnixMsToTime converts a UNIX timestamp in milliseconds to a UTC time.
// Zero maps to the zero time.
func UnixMsToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
