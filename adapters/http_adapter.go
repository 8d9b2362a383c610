// http_adapter.go
// ---------------
// HTTPAdapter is the production transport: one net/http round trip per attempt,
// JSON in and out, optional OAuth2 client-credentials bearer token.
//
// Key Points:
// - The per-attempt timeout arrives on ctx; the adapter never retries.
// - Response headers are flattened to a lower-cased map (first value wins).
// - Response bodies are capped at MaxResponseBytes.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	backendbridge "github.com/opengovern/backend-bridge"
)

// MaxResponseBytes bounds how much of a response body is read.
const MaxResponseBytes = 8 << 20

type HTTPAdapter struct {
	client  *http.Client
	headers map[string]string
}

type HTTPOption func(*HTTPAdapter)

// WithHTTPClient replaces the default client. Its Timeout should be zero; timeouts
// come from the caller's context.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) { a.client = c }
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(a *HTTPAdapter) { a.headers[key] = value }
}

// WithTokenSource authenticates every request with a bearer token from ts.
// Apply it after WithHTTPClient.
func WithTokenSource(ts oauth2.TokenSource) HTTPOption {
	return func(a *HTTPAdapter) {
		base := a.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		a.client = &http.Client{
			Transport:     &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: base},
			CheckRedirect: a.client.CheckRedirect,
			Jar:           a.client.Jar,
		}
	}
}

// ClientCredentials builds a token source from an OAuth configuration.
func ClientCredentials(ctx context.Context, cfg backendbridge.OAuthConfig) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(ctx)
}

func NewHTTPAdapter(opts ...HTTPOption) *HTTPAdapter {
	a := &HTTPAdapter{
		client:  &http.Client{},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (h *HTTPAdapter) ExecuteRequest(ctx context.Context, baseURL string, req *backendbridge.NormalizedRequest) (*backendbridge.NormalizedResponse, error) {
	body, err := req.EncodeBody()
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(baseURL), reader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if id := req.Context.CorrelationID; id != "" {
		httpReq.Header.Set("X-Correlation-ID", id)
	}
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		if len(vals) > 0 {
			headers[strings.ToLower(k)] = vals[0]
		}
	}

	return &backendbridge.NormalizedResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Raw:        data,
	}, nil
}
