// Package mock provides an in-process BackendAdapter with scripted outcomes.
// It stands in for the backend in tests and in local development (bridgectl --mock).
package mock

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	backendbridge "github.com/opengovern/backend-bridge"
)

// Outcome is what one attempt produces: either Err or a response.
type Outcome struct {
	Status  int
	Body    string
	Headers map[string]string
	Err     error
	Delay   time.Duration // waits before answering; honors ctx cancellation
}

// Call records one attempt seen by the adapter.
type Call struct {
	BaseURL string
	Request *backendbridge.NormalizedRequest
	At      time.Time
}

type MockAdapter struct {
	mu       sync.Mutex
	scripts  map[string][]Outcome
	handlers map[string]func(*backendbridge.NormalizedRequest) Outcome
	calls    []Call

	// Default answers requests with no script or handler.
	Default Outcome
}

func New() *MockAdapter {
	return &MockAdapter{
		scripts:  make(map[string][]Outcome),
		handlers: make(map[string]func(*backendbridge.NormalizedRequest) Outcome),
		Default:  JSON(200, `{"success":true}`),
	}
}

func key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Enqueue queues outcomes for method+path, consumed one per attempt. When the queue
// runs dry the last outcome keeps being returned.
func (m *MockAdapter) Enqueue(method, path string, outcomes ...Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(method, path)
	m.scripts[k] = append(m.scripts[k], outcomes...)
}

// Handle installs a handler for method+path, used when no script is queued.
func (m *MockAdapter) Handle(method, path string, fn func(*backendbridge.NormalizedRequest) Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key(method, path)] = fn
}

func (m *MockAdapter) next(req *backendbridge.NormalizedRequest) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(req.Method, req.Path)
	if q := m.scripts[k]; len(q) > 0 {
		out := q[0]
		if len(q) > 1 {
			m.scripts[k] = q[1:]
		}
		return out
	}
	if fn, ok := m.handlers[k]; ok {
		return fn(req)
	}
	return m.Default
}

func (m *MockAdapter) ExecuteRequest(ctx context.Context, baseURL string, req *backendbridge.NormalizedRequest) (*backendbridge.NormalizedResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{BaseURL: baseURL, Request: req, At: time.Now()})
	m.mu.Unlock()

	out := m.next(req)

	if out.Delay > 0 {
		t := time.NewTimer(out.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if out.Err != nil {
		return nil, out.Err
	}

	headers := make(map[string]string, len(out.Headers))
	for k, v := range out.Headers {
		headers[strings.ToLower(k)] = v
	}
	return &backendbridge.NormalizedResponse{
		StatusCode: out.Status,
		Headers:    headers,
		Raw:        []byte(out.Body),
	}, nil
}

// Calls returns every recorded attempt.
func (m *MockAdapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount counts attempts for method+path.
func (m *MockAdapter) CallCount(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if key(c.Request.Method, c.Request.Path) == key(method, path) {
			n++
		}
	}
	return n
}

// Reset forgets scripts, handlers and calls.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = make(map[string][]Outcome)
	m.handlers = make(map[string]func(*backendbridge.NormalizedRequest) Outcome)
	m.calls = nil
}

// JSON is a response outcome with a JSON content type.
func JSON(status int, body string) Outcome {
	return Outcome{Status: status, Body: body, Headers: map[string]string{"content-type": "application/json"}}
}

// Status is a response outcome with an empty body.
func Status(status int) Outcome {
	return Outcome{Status: status}
}

// Fail is a transport failure.
func Fail(err error) Outcome {
	return Outcome{Err: err}
}

// Timeout fails the attempt the way an expired per-attempt deadline does.
func Timeout() Outcome {
	return Fail(context.DeadlineExceeded)
}

// ConnectionRefused fails the attempt like dialing a closed port.
func ConnectionRefused() Outcome {
	return Fail(&net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)})
}

// DNSFailure fails the attempt like resolving an unknown host.
func DNSFailure(host string) Outcome {
	return Fail(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}})
}
