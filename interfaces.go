package backendbridge

import "context"

// BackendAdapter is the transport seam: one attempt, no retries, no business logic.
//
// ExecuteRequest sends req to baseURL and returns the raw status, lower-cased headers
// and body in a NormalizedResponse (Body left nil). Network failures are returned as
// errors and classified by NormalizeTransportError. Implementations must honor ctx,
// which carries the per-attempt timeout.
type BackendAdapter interface {
	ExecuteRequest(ctx context.Context, baseURL string, req *NormalizedRequest) (*NormalizedResponse, error)
}

// BackendSelector resolves the base address every call is sent to.
// Resolve is called once per call and must be cheap and side-effect free.
type BackendSelector interface {
	Resolve() (string, error)
}

// SelectorFunc adapts a function to BackendSelector.
type SelectorFunc func() (string, error)

func (f SelectorFunc) Resolve() (string, error) { return f() }
