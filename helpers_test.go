package backendbridge_test

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	backendbridge "github.com/opengovern/backend-bridge"
	"github.com/opengovern/backend-bridge/mock"
)

// recorder is an Instrumenter that keeps every event.
type recorder struct {
	mu        sync.Mutex
	started   []backendbridge.RequestEvent
	completed []backendbridge.RequestEvent
	probes    []backendbridge.HealthEvent
}

func (r *recorder) RequestStarted(e backendbridge.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, e)
}

func (r *recorder) RequestCompleted(e backendbridge.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, e)
}

func (r *recorder) HealthProbed(e backendbridge.HealthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, e)
}

func (r *recorder) MessageProcessed(backendbridge.MessageEvent) {}

type sleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func testConfig() backendbridge.Config {
	cfg := backendbridge.DefaultConfig()
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Backend.SubstituteURL = "http://localhost:4010"
	return cfg
}

func newBridge(cfg backendbridge.Config, opts ...backendbridge.Option) (*backendbridge.Bridge, *mock.MockAdapter, *recorder, *sleeps) {
	m := mock.New()
	rec := &recorder{}
	s := &sleeps{}
	opts = append([]backendbridge.Option{
		backendbridge.WithInstrumenter(rec),
		backendbridge.WithSleep(s.sleep),
		backendbridge.WithLogger(zap.NewNop()),
	}, opts...)
	b, err := backendbridge.New(cfg, m, opts...)
	if err != nil {
		panic(err)
	}
	return b, m, rec, s
}
