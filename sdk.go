// sdk.go
// ------
// The sdk.go file contains the Bridge struct, the only entry point screens use
// to talk to the backend.
//
// Key functionalities include:
// - Initializing the client with New()
// - Making calls via Call() and the Get/Post/Put/Patch/Delete helpers
// - Checking backend health (cached and deduplicated) via Health()
// - Redirecting traffic to a substitute backend through the BackendSelector
//
// Every call goes selector -> RequestExecutor (retry, backoff, cooldown) ->
// BackendAdapter -> error normalizer, and every failure comes back as *NormalizedError.
package backendbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opengovern/backend-bridge/internal/logger"
)

type Bridge struct {
	adapter  BackendAdapter
	selector BackendSelector
	executor *RequestExecutor
	limiter  *RateLimiter
	health   *HealthMonitor
	instr    Instrumenter
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

type options struct {
	selector BackendSelector
	instr    Instrumenter
	log      *zap.Logger
	sleep    SleepFunc
	now      func() time.Time
}

// Option customizes a Bridge.
type Option func(*options)

// WithSelector replaces the selector built from Config.Backend.
func WithSelector(s BackendSelector) Option { return func(o *options) { o.selector = s } }

func WithInstrumenter(i Instrumenter) Option { return func(o *options) { o.instr = i } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithSleep replaces the backoff sleep; tests use it to record delays instead of waiting.
func WithSleep(s SleepFunc) Option { return func(o *options) { o.sleep = s } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New wires a Bridge around adapter. Without WithSelector the backend address comes
// from cfg.Backend; an invalid address surfaces as an error on each call, not here.
func New(cfg Config, adapter BackendAdapter, opts ...Option) (*Bridge, error) {
	if adapter == nil {
		return nil, fmt.Errorf("backendbridge: adapter is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.selector == nil {
		o.selector = NewConfigSelector(cfg.Backend.BaseURL, cfg.Backend.SubstituteURL, cfg.Backend.UseSubstitute)
	}
	if o.instr == nil {
		o.instr = NopInstrumenter{}
	}
	if o.log == nil {
		o.log = logger.Named("bridge")
	}

	limiter := NewRateLimiter()
	limiter.now = o.now

	health := NewHealthMonitor(adapter, o.selector, cfg.Health, o.instr, o.log.Named("health"))
	health.now = o.now

	b := &Bridge{
		adapter:  adapter,
		selector: o.selector,
		limiter:  limiter,
		executor: NewRequestExecutor(cfg.Retry, o.sleep, limiter, o.log.Named("executor")),
		health:   health,
		instr:    o.instr,
		timeout:  cfg.Backend.Timeout,
		log:      o.log,
		now:      o.now,
	}
	b.log.Debug("bridge initialized",
		zap.Int("max_retries", cfg.Retry.MaxRetries),
		zap.Duration("timeout", cfg.Backend.Timeout))
	return b, nil
}

// Call sends one logical request, retrying transient failures. The returned error,
// when non-nil, is always a *NormalizedError.
func (b *Bridge) Call(ctx context.Context, method, path string, opts ...CallOption) (*NormalizedResponse, error) {
	req := NewRequest(method, path, opts...)
	if req.Context.CorrelationID == "" {
		req = req.withCorrelationID(uuid.NewString())
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}

	ev := RequestEvent{Method: req.Method, Path: req.Path, Context: req.Context}
	start := b.now()

	base, err := b.selector.Resolve()
	ev.Backend = base
	b.instr.RequestStarted(ev)
	if err != nil {
		nerr := &NormalizedError{Kind: KindUnknown, Details: "backend selection failed", Err: err}
		b.complete(ev, start, nil, nerr)
		return nil, nerr
	}

	ctx = logger.ToContext(ctx, b.log.With(
		logger.CorrelationID(req.Context.CorrelationID),
		logger.Client(req.Context.Client),
		logger.Op(req.Context.Operation),
	))
	resp, attempts, nerr := b.executor.ExecuteWithRetry(ctx, base, func(ctx context.Context, attempt int) (*NormalizedResponse, *NormalizedError) {
		return b.attempt(ctx, base, req, timeout)
	})
	ev.Attempts = attempts
	b.complete(ev, start, resp, nerr)
	if nerr != nil {
		return nil, nerr
	}
	resp.Elapsed = b.now().Sub(start)
	return resp, nil
}

func (b *Bridge) attempt(ctx context.Context, base string, req *NormalizedRequest, timeout time.Duration) (resp *NormalizedResponse, nerr *NormalizedError) {
	defer func() {
		if r := recover(); r != nil {
			logger.From(ctx).Error("adapter panicked", logger.Backend(base), logger.Path(req.Path), zap.Any("panic", r))
			resp, nerr = nil, &NormalizedError{Kind: KindUnknown, Details: r}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := b.adapter.ExecuteRequest(ctx, base, req)
	if err != nil {
		return nil, NormalizeTransportError(err)
	}
	b.limiter.UpdateFromResponse(base, raw)
	return NormalizeResponse(raw)
}

func (b *Bridge) complete(ev RequestEvent, start time.Time, resp *NormalizedResponse, nerr *NormalizedError) {
	ev.Duration = b.now().Sub(start)
	if nerr != nil {
		ev.Outcome = string(nerr.Kind)
		ev.Status = nerr.Status
		ev.Err = nerr
	} else {
		ev.Outcome = OutcomeOK
		ev.Status = resp.StatusCode
	}
	b.instr.RequestCompleted(ev)
}

func (b *Bridge) Get(ctx context.Context, path string, opts ...CallOption) (*NormalizedResponse, error) {
	return b.Call(ctx, http.MethodGet, path, opts...)
}

func (b *Bridge) Post(ctx context.Context, path string, body any, opts ...CallOption) (*NormalizedResponse, error) {
	return b.Call(ctx, http.MethodPost, path, append([]CallOption{WithBody(body)}, opts...)...)
}

func (b *Bridge) Put(ctx context.Context, path string, body any, opts ...CallOption) (*NormalizedResponse, error) {
	return b.Call(ctx, http.MethodPut, path, append([]CallOption{WithBody(body)}, opts...)...)
}

func (b *Bridge) Patch(ctx context.Context, path string, body any, opts ...CallOption) (*NormalizedResponse, error) {
	return b.Call(ctx, http.MethodPatch, path, append([]CallOption{WithBody(body)}, opts...)...)
}

func (b *Bridge) Delete(ctx context.Context, path string, opts ...CallOption) (*NormalizedResponse, error) {
	return b.Call(ctx, http.MethodDelete, path, opts...)
}

// DecodeInto unmarshals the response JSON into v. An empty body leaves v untouched.
func DecodeInto(resp *NormalizedResponse, v any) error {
	if resp == nil || len(resp.Raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Raw, v); err != nil {
		return &NormalizedError{Kind: KindDecodeError, Status: resp.StatusCode, Details: string(resp.Raw), Err: err}
	}
	return nil
}

// Health returns the cached or freshly probed health of the selected backend.
func (b *Bridge) Health(ctx context.Context) HealthState {
	return b.health.CheckHealth(ctx)
}

// Metrics fetches GET {base}/metrics.
func (b *Bridge) Metrics(ctx context.Context, opts ...CallOption) (*BackendMetrics, error) {
	resp, err := b.Get(ctx, "/metrics", append([]CallOption{WithOperation("backend_metrics")}, opts...)...)
	if err != nil {
		return nil, err
	}
	var m BackendMetrics
	if err := DecodeInto(resp, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// HealthMonitor exposes the monitor, e.g. to Start periodic probing.
func (b *Bridge) HealthMonitor() *HealthMonitor { return b.health }

func (b *Bridge) Selector() BackendSelector { return b.selector }

// CooldownUntil reports when the selected backend allows traffic again after a
// Retry-After hint.
func (b *Bridge) CooldownUntil() (time.Time, bool) {
	base, err := b.selector.Resolve()
	if err != nil {
		return time.Time{}, false
	}
	return b.limiter.ResetAt(base)
}
