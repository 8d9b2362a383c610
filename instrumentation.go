package backendbridge

import (
	"time"

	"go.uber.org/zap"

	"github.com/opengovern/backend-bridge/internal/logger"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RequestEvent describes one facade call. Outcome is "ok" or the error kind.
type RequestEvent struct {
	Backend  string
	Method   string
	Path     string
	Context  CallContext
	Status   int
	Outcome  string
	Attempts int
	Duration time.Duration
	Err      *NormalizedError
}

// HealthEvent describes one health probe.
type HealthEvent struct {
	Backend             string
	Status              HealthStatus
	Previous            HealthStatus
	ConsecutiveFailures int
	Duration            time.Duration
	Outcome             string
	Err                 *NormalizedError
}

// MessageEvent describes one inbound bus message. Outcome is "ok" or "error".
type MessageEvent struct {
	Subject   string
	Topic     string
	EventType string
	Size      int
	Duration  time.Duration
	Outcome   string
	Err       error
}

// Instrumenter receives lifecycle events from the client and the event bridge.
// Implementations must be safe for concurrent use and must not block.
type Instrumenter interface {
	RequestStarted(RequestEvent)
	RequestCompleted(RequestEvent)
	HealthProbed(HealthEvent)
	MessageProcessed(MessageEvent)
}

type NopInstrumenter struct{}

func (NopInstrumenter) RequestStarted(RequestEvent)   {}
func (NopInstrumenter) RequestCompleted(RequestEvent) {}
func (NopInstrumenter) HealthProbed(HealthEvent)      {}
func (NopInstrumenter) MessageProcessed(MessageEvent) {}

// MultiInstrumenter fans events out in order.
type MultiInstrumenter []Instrumenter

func (m MultiInstrumenter) RequestStarted(e RequestEvent) {
	for _, i := range m {
		i.RequestStarted(e)
	}
}

func (m MultiInstrumenter) RequestCompleted(e RequestEvent) {
	for _, i := range m {
		i.RequestCompleted(e)
	}
}

func (m MultiInstrumenter) HealthProbed(e HealthEvent) {
	for _, i := range m {
		i.HealthProbed(e)
	}
}

func (m MultiInstrumenter) MessageProcessed(e MessageEvent) {
	for _, i := range m {
		i.MessageProcessed(e)
	}
}

// LogInstrumenter writes events as structured log entries.
type LogInstrumenter struct {
	Log *zap.Logger
}

func NewLogInstrumenter(l *zap.Logger) *LogInstrumenter {
	if l == nil {
		l = logger.Named("instrumentation")
	}
	return &LogInstrumenter{Log: l}
}

func callFields(e RequestEvent) []zap.Field {
	return []zap.Field{
		logger.Backend(e.Backend),
		logger.Method(e.Method),
		logger.Path(e.Path),
		logger.TenantID(e.Context.TenantID),
		logger.UserID(e.Context.UserID),
		logger.CorrelationID(e.Context.CorrelationID),
		logger.Client(e.Context.Client),
		logger.Op(e.Context.Operation),
	}
}

func (l *LogInstrumenter) RequestStarted(e RequestEvent) {
	l.Log.Debug("request started", callFields(e)...)
}

func (l *LogInstrumenter) RequestCompleted(e RequestEvent) {
	fields := append(callFields(e),
		logger.Status(e.Status),
		zap.String("outcome", e.Outcome),
		logger.Attempt(e.Attempts),
		logger.Duration(e.Duration),
	)
	if e.Err != nil {
		l.Log.Warn("request failed", append(fields, logger.Err(e.Err))...)
		return
	}
	l.Log.Info("request completed", fields...)
}

func (l *LogInstrumenter) HealthProbed(e HealthEvent) {
	l.Log.Debug("health probed",
		logger.Backend(e.Backend),
		zap.String("status", string(e.Status)),
		zap.Int("consecutive_failures", e.ConsecutiveFailures),
		zap.String("outcome", e.Outcome),
		logger.Duration(e.Duration),
	)
}

func (l *LogInstrumenter) MessageProcessed(e MessageEvent) {
	fields := []zap.Field{
		logger.Subject(e.Subject),
		logger.Topic(e.Topic),
		zap.String("event_type", e.EventType),
		logger.Bytes(e.Size),
		zap.String("outcome", e.Outcome),
		logger.Duration(e.Duration),
	}
	if e.Err != nil {
		l.Log.Debug("bus message dropped", append(fields, logger.Err(e.Err))...)
		return
	}
	l.Log.Debug("bus message processed", fields...)
}
