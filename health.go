// health.go
// ---------
// HealthMonitor probes GET {base}/health and keeps a healthy/unhealthy state per
// backend. Results are cached for a short TTL and concurrent checks share a single
// in-flight probe, so a burst of screens asking for health costs one request.
package backendbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/opengovern/backend-bridge/internal/logger"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type HealthConfig struct {
	Interval         time.Duration `yaml:"interval"`
	TTL              time.Duration `yaml:"ttl"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"` // per probe
}

// DefaultHealthConfig leaves Timeout zero so probes inherit the backend timeout.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:         DefaultHealthInterval,
		TTL:              DefaultHealthTTL,
		FailureThreshold: DefaultFailureThreshold,
	}
}

// HealthState is a snapshot; callers get copies and never see internal fields change.
type HealthState struct {
	Backend             string
	Status              HealthStatus
	ConsecutiveFailures int
	LastChecked         time.Time
	LastSuccess         time.Time
	Report              *HealthReport    // last successful report
	Err                 *NormalizedError // outcome of the last probe, nil on success
	ExpiresAt           time.Time
}

func (s HealthState) Healthy() bool { return s.Status == StatusHealthy }

// detach copies the pointed-to report and error so the snapshot shares nothing
// with the monitor, its cache or other callers.
func (s HealthState) detach() HealthState {
	if s.Report != nil {
		r := *s.Report
		s.Report = &r
	}
	if s.Err != nil {
		e := *s.Err
		s.Err = &e
	}
	return s
}

var healthCallContext = CallContext{Client: "health_monitor", Operation: "health_check"}

type HealthMonitor struct {
	adapter  BackendAdapter
	selector BackendSelector
	cfg      HealthConfig
	instr    Instrumenter
	log      *zap.Logger
	now      func() time.Time

	cache  *gocache.Cache
	flight singleflight.Group

	mu     sync.Mutex
	states map[string]*HealthState

	probes atomic.Int64
}

func NewHealthMonitor(adapter BackendAdapter, selector BackendSelector, cfg HealthConfig, instr Instrumenter, log *zap.Logger) *HealthMonitor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultHealthTTL
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if instr == nil {
		instr = NopInstrumenter{}
	}
	if log == nil {
		log = logger.Named("health")
	}
	return &HealthMonitor{
		adapter:  adapter,
		selector: selector,
		cfg:      cfg,
		instr:    instr,
		log:      log,
		now:      time.Now,
		cache:    gocache.New(cfg.TTL, time.Minute),
		states:   make(map[string]*HealthState),
	}
}

// CheckHealth returns the health of the currently selected backend. A cached result
// younger than the TTL is returned as is; otherwise callers share one probe.
func (m *HealthMonitor) CheckHealth(ctx context.Context) HealthState {
	base, err := m.selector.Resolve()
	if err != nil {
		return HealthState{
			Status:      StatusUnhealthy,
			LastChecked: m.now(),
			Err:         &NormalizedError{Kind: KindUnknown, Details: "backend selection failed", Err: err},
		}
	}

	if st, ok := m.cached(base); ok {
		return st
	}

	v, _, _ := m.flight.Do(base, func() (any, error) {
		// A flight that finished between our cache miss and Do already stored a fresh result.
		if st, ok := m.cached(base); ok {
			return st, nil
		}
		st := m.probe(ctx, base)
		m.cache.Set(base, st, m.cfg.TTL)
		return st, nil
	})
	return v.(HealthState).detach()
}

func (m *HealthMonitor) cached(base string) (HealthState, bool) {
	v, ok := m.cache.Get(base)
	if !ok {
		return HealthState{}, false
	}
	return v.(HealthState).detach(), true
}

// Start probes the selected backend every Interval until ctx is done.
func (m *HealthMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.CheckHealth(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckHealth(ctx)
			}
		}
	}()
}

// Invalidate drops cached results so the next check probes.
func (m *HealthMonitor) Invalidate() { m.cache.Flush() }

// States returns the last known state of every probed backend.
func (m *HealthMonitor) States() map[string]HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]HealthState, len(m.states))
	for k, v := range m.states {
		out[k] = v.detach()
	}
	return out
}

// Probes is the number of probes sent so far.
func (m *HealthMonitor) Probes() int64 { return m.probes.Load() }

func (m *HealthMonitor) probe(ctx context.Context, base string) HealthState {
	m.probes.Add(1)

	// The probe is shared by every waiter, so one caller cancelling must not fail the rest.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
	defer cancel()

	start := m.now()
	report, nerr := m.fetchReport(ctx, base)
	return m.record(base, report, nerr, m.now().Sub(start))
}

func (m *HealthMonitor) fetchReport(ctx context.Context, base string) (report *HealthReport, nerr *NormalizedError) {
	defer func() {
		if r := recover(); r != nil {
			report, nerr = nil, &NormalizedError{Kind: KindUnknown, Details: r}
		}
	}()

	req := NewRequest(http.MethodGet, "/health", WithCallContext(healthCallContext))
	raw, err := m.adapter.ExecuteRequest(ctx, base, req)
	if err != nil {
		return nil, NormalizeTransportError(err)
	}
	resp, nerr := NormalizeResponse(raw)
	if nerr != nil {
		return nil, nerr
	}

	var r HealthReport
	if err := json.Unmarshal(resp.Raw, &r); err != nil {
		return nil, &NormalizedError{Kind: KindDecodeError, Status: resp.StatusCode, Details: string(resp.Raw), Err: err}
	}
	return &r, nil
}

func (m *HealthMonitor) record(base string, report *HealthReport, nerr *NormalizedError, took time.Duration) HealthState {
	now := m.now()

	m.mu.Lock()
	st, ok := m.states[base]
	if !ok {
		st = &HealthState{Backend: base, Status: StatusHealthy}
		m.states[base] = st
	}
	previous := st.Status

	st.LastChecked = now
	st.ExpiresAt = now.Add(m.cfg.TTL)
	st.Err = nerr
	if nerr == nil {
		st.ConsecutiveFailures = 0
		st.Status = StatusHealthy
		st.LastSuccess = now
		st.Report = report
		if report != nil {
			r := *report
			st.Report = &r
		}
	} else {
		st.ConsecutiveFailures++
		if st.ConsecutiveFailures >= m.cfg.FailureThreshold {
			st.Status = StatusUnhealthy
		}
	}
	out := st.detach()
	m.mu.Unlock()

	if out.Status != previous {
		if out.Status == StatusUnhealthy {
			m.log.Warn("backend became unhealthy",
				logger.Backend(base),
				zap.Int("consecutive_failures", out.ConsecutiveFailures),
				logger.ErrorKind(string(nerr.Kind)))
		} else {
			m.log.Info("backend recovered", logger.Backend(base))
		}
	}

	ev := HealthEvent{
		Backend:             base,
		Status:              out.Status,
		Previous:            previous,
		ConsecutiveFailures: out.ConsecutiveFailures,
		Duration:            took,
		Outcome:             OutcomeOK,
	}
	if nerr != nil {
		ev.Outcome = string(nerr.Kind)
		ev.Err = nerr
	}
	m.instr.HealthProbed(ev)

	return out
}
