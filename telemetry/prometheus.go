// Package telemetry exports bridge instrumentation events as Prometheus metrics.
//
// Labels stay low-cardinality: logical client and operation names, methods,
// outcomes and topics. Tenant, user and correlation ids go to logs only.
package telemetry

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	backendbridge "github.com/opengovern/backend-bridge"
)

const namespace = "backend_bridge"

type Prometheus struct {
	requestsInFlight *prometheus.GaugeVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestAttempts  *prometheus.HistogramVec

	healthProbes  *prometheus.CounterVec
	healthStatus  *prometheus.GaugeVec
	healthFailing *prometheus.GaugeVec

	messagesTotal   *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	messageBytes    *prometheus.HistogramVec
}

var _ backendbridge.Instrumenter = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on reg (the default
// registerer when nil). Collectors already registered by an earlier instance are reused.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		requestsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Backend calls currently being processed.",
		}, []string{"client", "operation"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Backend calls by outcome (ok or error kind).",
		}, []string{"client", "operation", "method", "status", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Backend call latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"client", "operation", "method"}),
		requestAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_attempts",
			Help:      "Transport attempts per backend call.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}, []string{"client", "operation"}),
		healthProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Health probes by outcome.",
		}, []string{"backend", "outcome"}),
		healthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_healthy",
			Help:      "1 when the backend is healthy, 0 otherwise.",
		}, []string{"backend"}),
		healthFailing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_consecutive_failures",
			Help:      "Consecutive failed health probes.",
		}, []string{"backend"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Inbound bus messages by mapped topic and outcome.",
		}, []string{"topic", "outcome"}),
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_message_duration_seconds",
			Help:      "Time to decode and broadcast one bus message.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"topic"}),
		messageBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_message_bytes",
			Help:      "Inbound bus payload sizes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"topic"}),
	}

	var err error
	p.requestsInFlight = register(reg, p.requestsInFlight, &err)
	p.requestsTotal = register(reg, p.requestsTotal, &err)
	p.requestDuration = register(reg, p.requestDuration, &err)
	p.requestAttempts = register(reg, p.requestAttempts, &err)
	p.healthProbes = register(reg, p.healthProbes, &err)
	p.healthStatus = register(reg, p.healthStatus, &err)
	p.healthFailing = register(reg, p.healthFailing, &err)
	p.messagesTotal = register(reg, p.messagesTotal, &err)
	p.messageDuration = register(reg, p.messageDuration, &err)
	p.messageBytes = register(reg, p.messageBytes, &err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// register adds c to reg, returning the existing collector when one with the same
// descriptor is already there. The first hard failure is kept in *errp.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

func label(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (p *Prometheus) RequestStarted(e backendbridge.RequestEvent) {
	p.requestsInFlight.WithLabelValues(label(e.Context.Client, "unknown"), label(e.Context.Operation, "unknown")).Inc()
}

func (p *Prometheus) RequestCompleted(e backendbridge.RequestEvent) {
	client, op := label(e.Context.Client, "unknown"), label(e.Context.Operation, "unknown")
	p.requestsInFlight.WithLabelValues(client, op).Dec()
	p.requestsTotal.WithLabelValues(client, op, e.Method, strconv.Itoa(e.Status), e.Outcome).Inc()
	p.requestDuration.WithLabelValues(client, op, e.Method).Observe(e.Duration.Seconds())
	if e.Attempts > 0 {
		p.requestAttempts.WithLabelValues(client, op).Observe(float64(e.Attempts))
	}
}

func (p *Prometheus) HealthProbed(e backendbridge.HealthEvent) {
	p.healthProbes.WithLabelValues(e.Backend, e.Outcome).Inc()
	healthy := 0.0
	if e.Status == backendbridge.StatusHealthy {
		healthy = 1
	}
	p.healthStatus.WithLabelValues(e.Backend).Set(healthy)
	p.healthFailing.WithLabelValues(e.Backend).Set(float64(e.ConsecutiveFailures))
}

func (p *Prometheus) MessageProcessed(e backendbridge.MessageEvent) {
	p.messagesTotal.WithLabelValues(e.Topic, e.Outcome).Inc()
	p.messageDuration.WithLabelValues(e.Topic).Observe(e.Duration.Seconds())
	p.messageBytes.WithLabelValues(e.Topic).Observe(float64(e.Size))
}
