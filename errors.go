// errors.go
// ---------
// The error normalizer. Every failure the bridge returns to callers is a
// *NormalizedError of one of a closed set of kinds, whatever the transport,
// status code or payload that caused it.
package backendbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind is the closed taxonomy of failures.
type ErrorKind string

const (
	KindHTTPError         ErrorKind = "http_error"
	KindBodyError         ErrorKind = "body_error"
	KindDecodeError       ErrorKind = "decode_error"
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindDNSFailure        ErrorKind = "dns_failure"
	KindUnknown           ErrorKind = "unknown"
)

// Kind sentinels for errors.Is.
var (
	ErrHTTP              = &NormalizedError{Kind: KindHTTPError}
	ErrBody              = &NormalizedError{Kind: KindBodyError}
	ErrDecode            = &NormalizedError{Kind: KindDecodeError}
	ErrTimeout           = &NormalizedError{Kind: KindTimeout}
	ErrConnectionRefused = &NormalizedError{Kind: KindConnectionRefused}
	ErrDNSFailure        = &NormalizedError{Kind: KindDNSFailure}
	ErrUnknown           = &NormalizedError{Kind: KindUnknown}
)

// NormalizedError is the only error shape returned by the bridge.
// Details holds the original body or outcome for logging and must not be shown to end users.
type NormalizedError struct {
	Kind    ErrorKind
	Status  int
	Details any
	Err     error
}

func (e *NormalizedError) Error() string {
	var b strings.Builder
	b.WriteString("backend: ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NormalizedError) Unwrap() error { return e.Err }

// Is matches on kind, so errors.Is(err, ErrTimeout) works for any timeout.
func (e *NormalizedError) Is(target error) bool {
	t, ok := target.(*NormalizedError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// Transient reports whether a retry may succeed.
func (e *NormalizedError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionRefused:
		return true
	case KindHTTPError:
		return e.Status >= 500
	default:
		return false
	}
}

// UserMessage is a short, non-technical description for end users.
func (e *NormalizedError) UserMessage() string {
	switch e.Kind {
	case KindHTTPError:
		switch {
		case e.Status == 404:
			return "The requested item could not be found."
		case e.Status == 401 || e.Status == 403:
			return "You are not allowed to do that."
		case e.Status == 429:
			return "Too many requests. Please wait a moment and try again."
		case e.Status >= 500:
			return "The service is having trouble right now. Please try again later."
		default:
			return "The request could not be completed."
		}
	case KindBodyError:
		return "The service could not complete the request."
	case KindDecodeError:
		return "The service sent an unexpected response."
	case KindTimeout:
		return "The service took too long to respond."
	case KindConnectionRefused, KindDNSFailure:
		return "The service is unreachable."
	default:
		return "Something went wrong."
	}
}

// KindOf returns the kind of err, KindUnknown for foreign errors and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return KindUnknown
}

// AsNormalized converts any error into a *NormalizedError. nil stays nil.
func AsNormalized(err error) *NormalizedError {
	if err == nil {
		return nil
	}
	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne
	}
	return NormalizeTransportError(err)
}

// NormalizeTransportError classifies an error returned by a BackendAdapter.
func NormalizeTransportError(err error) *NormalizedError {
	if err == nil {
		return nil
	}

	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &NormalizedError{Kind: KindTimeout, Err: err}
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return &NormalizedError{Kind: KindTimeout, Err: err}
		}
		return &NormalizedError{Kind: KindDNSFailure, Details: dnsErr.Name, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &NormalizedError{Kind: KindConnectionRefused, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &NormalizedError{Kind: KindTimeout, Err: err}
	default:
		return &NormalizedError{Kind: KindUnknown, Err: err}
	}
}

// NormalizeResponse decodes a raw adapter response. A nil response, a non-2xx status,
// an error-bodied 2xx or an undecodable JSON body all yield a *NormalizedError.
func NormalizeResponse(resp *NormalizedResponse) (*NormalizedResponse, *NormalizedError) {
	if resp == nil {
		return nil, &NormalizedError{Kind: KindUnknown, Details: "empty response from adapter"}
	}

	status := resp.StatusCode
	raw := bytes.TrimSpace(resp.Raw)

	switch {
	case status >= 200 && status < 300:
	case status >= 300 && status < 600:
		return nil, &NormalizedError{Kind: KindHTTPError, Status: status, Details: decodeDetails(raw)}
	default:
		return nil, &NormalizedError{Kind: KindUnknown, Status: status, Details: string(raw)}
	}

	out := *resp
	if status == 204 || len(raw) == 0 {
		out.Body = map[string]any{}
		return &out, nil
	}

	if !isJSON(resp.Headers["content-type"]) {
		out.Body = resp.Raw
		return &out, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &NormalizedError{
			Kind:    KindDecodeError,
			Status:  status,
			Details: string(raw),
			Err:     err,
		}
	}

	if obj, ok := v.(map[string]any); ok && signalsError(obj["error"]) {
		return nil, &NormalizedError{Kind: KindBodyError, Status: status, Details: obj}
	}

	out.Body = v
	return &out, nil
}

// isJSON treats a missing content type as JSON; backends routinely omit it.
func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json")
}

func signalsError(v any) bool {
	switch e := v.(type) {
	case nil:
		return false
	case bool:
		return e
	case string:
		return e != ""
	default:
		return true
	}
}

func decodeDetails(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}
