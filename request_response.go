package backendbridge

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/opengovern/backend-bridge/internal"
)

// CallContext carries caller identity for instrumentation only. It never
// influences routing or retry decisions.
type CallContext struct {
	TenantID      string
	UserID        string
	CorrelationID string
	Client        string // logical client name, e.g. "messages_screen"
	Operation     string // logical operation name, e.g. "list_messages"
}

// NormalizedRequest is one backend call. Build it with NewRequest; adapters must
// treat it as read-only.
type NormalizedRequest struct {
	Method  string
	Path    string
	Query   map[string]string
	Body    any
	Timeout time.Duration // per-attempt override, 0 means the bridge default
	Context CallContext
}

// NormalizedResponse is produced per call. Adapters fill StatusCode, Headers and Raw;
// the normalizer fills Body.
type NormalizedResponse struct {
	StatusCode int
	Headers    map[string]string // lower-cased header names
	Body       any               // decoded JSON, raw bytes for non-JSON content, empty map for no content
	Raw        []byte
	Elapsed    time.Duration
}

// CallOption customizes a NormalizedRequest.
type CallOption func(*NormalizedRequest)

// NewRequest builds an immutable request. Query entries with empty values are dropped.
func NewRequest(method, path string, opts ...CallOption) *NormalizedRequest {
	req := &NormalizedRequest{
		Method: strings.ToUpper(method),
		Path:   path,
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func WithQuery(q map[string]string) CallOption {
	return func(r *NormalizedRequest) {
		for k, v := range q {
			if v == "" {
				continue
			}
			if r.Query == nil {
				r.Query = make(map[string]string, len(q))
			}
			r.Query[k] = v
		}
	}
}

// WithBody sets the request body. []byte and json.RawMessage are sent as is,
// anything else is JSON encoded.
func WithBody(body any) CallOption {
	return func(r *NormalizedRequest) { r.Body = body }
}

func WithTimeout(d time.Duration) CallOption {
	return func(r *NormalizedRequest) { r.Timeout = d }
}

func WithTenant(id string) CallOption {
	return func(r *NormalizedRequest) { r.Context.TenantID = id }
}

func WithUser(id string) CallOption {
	return func(r *NormalizedRequest) { r.Context.UserID = id }
}

func WithCorrelationID(id string) CallOption {
	return func(r *NormalizedRequest) { r.Context.CorrelationID = id }
}

func WithClient(name string) CallOption {
	return func(r *NormalizedRequest) { r.Context.Client = name }
}

func WithOperation(name string) CallOption {
	return func(r *NormalizedRequest) { r.Context.Operation = name }
}

// WithCallContext replaces the whole caller context.
func WithCallContext(cc CallContext) CallOption {
	return func(r *NormalizedRequest) { r.Context = cc }
}

// EncodedQuery returns the query string in key order.
func (r *NormalizedRequest) EncodedQuery() string {
	if len(r.Query) == 0 {
		return ""
	}
	v := url.Values{}
	for k, val := range r.Query {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v.Encode()
}

// URL joins the backend base address with the request path and query. A query
// already carried by Path is merged with Query; Query wins on conflicting keys.
func (r *NormalizedRequest) URL(base string) string {
	path, rawQuery, _ := strings.Cut(r.Path, "?")
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if rawQuery == "" {
		if q := r.EncodedQuery(); q != "" {
			u += "?" + q
		}
		return u
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// keep an unparsable query verbatim
		if q := r.EncodedQuery(); q != "" {
			rawQuery += "&" + q
		}
		return u + "?" + rawQuery
	}
	for k, v := range r.Query {
		if v != "" {
			values.Set(k, v)
		}
	}
	return u + "?" + values.Encode()
}

// EncodeBody returns the wire form of Body, or nil when there is none.
func (r *NormalizedRequest) EncodeBody() ([]byte, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

func (r *NormalizedRequest) withCorrelationID(id string) *NormalizedRequest {
	cp := *r
	cp.Context.CorrelationID = id
	return &cp
}

// HealthReport is the body of GET {base}/health.
type HealthReport struct {
	Status string `json:"status"`
	Bus    struct {
		Connected bool `json:"connected"`
	} `json:"bus"`
	Timestamp int64 `json:"timestamp"` // ms since epoch
}

// ReportedAt is the backend's own clock at the time of the report.
func (r HealthReport) ReportedAt() time.Time { return internal.UnixMsToTime(r.Timestamp) }

// BackendMetrics is the body of GET {base}/metrics.
type BackendMetrics struct {
	Throughput float64 `json:"throughput"`
	LatencyMs  float64 `json:"latency_ms"`
	ErrorRate  float64 `json:"error_rate"`
}
