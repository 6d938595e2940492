// Package telemetry exposes the Prometheus metrics surface for the
// governance runtime, grounded on the teacher's infrastructure/metrics
// package but re-scoped from generic HTTP/blockchain counters to the
// EISV dynamics, stuck-detector, dialectic, and lock-capability concerns
// named in the expanded spec's Auxiliary Services row.
package telemetry

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the governance daemon publishes.
type Metrics struct {
	// HTTP transport
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Operation dispatch
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	// EISV dynamics
	EISVUpdatesTotal *prometheus.CounterVec
	AgentRiskScore   *prometheus.GaugeVec
	AgentMargin      *prometheus.GaugeVec

	// Stuck detector
	StuckSweepsTotal      prometheus.Counter
	StuckDetectionsTotal  *prometheus.CounterVec
	AutoResumesTotal      prometheus.Counter

	// Dialectic state machine
	DialecticSessionsOpened  prometheus.Counter
	DialecticSessionsResolved *prometheus.CounterVec
	DialecticSynthesisAttempts prometheus.Histogram

	// Lock capability
	LockAcquisitionsTotal *prometheus.CounterVec
	LocksHeld             prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName, version string) *Metrics {
	return NewWithRegistry(serviceName, version, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom
// registry, used by tests to avoid collector-already-registered panics.
func NewWithRegistry(serviceName, version string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current in-flight HTTP requests"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "operations_total", Help: "Total operation-table dispatches"},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operation_duration_seconds",
				Help:    "Operation dispatch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total errors by code"},
			[]string{"code"},
		),
		EISVUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "eisv_updates_total", Help: "Total EISV dynamics updates"},
			[]string{"event_type"},
		),
		AgentRiskScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "agent_risk_score", Help: "Latest computed risk score per agent"},
			[]string{"agent_uuid"},
		),
		AgentMargin: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "agent_safety_margin", Help: "Latest safety margin per agent"},
			[]string{"agent_uuid"},
		),
		StuckSweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "stuck_detector_sweeps_total", Help: "Total stuck-detector sweep passes"},
		),
		StuckDetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "stuck_detections_total", Help: "Total stuck detections by reason"},
			[]string{"reason"},
		),
		AutoResumesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "auto_resumes_total", Help: "Total safe-to-resume auto-recoveries"},
		),
		DialecticSessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "dialectic_sessions_opened_total", Help: "Total dialectic sessions opened"},
		),
		DialecticSessionsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dialectic_sessions_resolved_total", Help: "Total dialectic sessions resolved by outcome"},
			[]string{"outcome"},
		),
		DialecticSynthesisAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialectic_synthesis_attempts",
				Help:    "Number of synthesis attempts per resolved session",
				Buckets: []float64{1, 2, 3},
			},
		),
		LockAcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "lock_acquisitions_total", Help: "Total named-lock acquisition attempts"},
			[]string{"status"},
		),
		LocksHeld: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "locks_held", Help: "Current number of held named locks"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service build information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
			m.OperationsTotal, m.OperationDuration, m.ErrorsTotal,
			m.EISVUpdatesTotal, m.AgentRiskScore, m.AgentMargin,
			m.StuckSweepsTotal, m.StuckDetectionsTotal, m.AutoResumesTotal,
			m.DialecticSessionsOpened, m.DialecticSessionsResolved, m.DialecticSynthesisAttempts,
			m.LockAcquisitionsTotal, m.LocksHeld,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, version, environment()).Set(1)
	return m
}

// RecordHTTPRequest records an HTTP request observation.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records an operation-table dispatch.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError increments the error counter for a given error code.
func (m *Metrics) RecordError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// RecordEISVUpdate increments the dynamics-update counter.
func (m *Metrics) RecordEISVUpdate(eventType string) {
	m.EISVUpdatesTotal.WithLabelValues(eventType).Inc()
}

// SetAgentState publishes the latest risk score and margin for an agent.
func (m *Metrics) SetAgentState(agentUUID string, riskScore, margin float64) {
	m.AgentRiskScore.WithLabelValues(agentUUID).Set(riskScore)
	m.AgentMargin.WithLabelValues(agentUUID).Set(margin)
}

// RecordStuckSweep records one stuck-detector sweep pass.
func (m *Metrics) RecordStuckSweep() {
	m.StuckSweepsTotal.Inc()
}

// RecordStuckDetection records a stuck classification by reason.
func (m *Metrics) RecordStuckDetection(reason string) {
	m.StuckDetectionsTotal.WithLabelValues(reason).Inc()
}

// RecordAutoResume records a safe-to-resume auto-recovery.
func (m *Metrics) RecordAutoResume() {
	m.AutoResumesTotal.Inc()
}

// RecordDialecticOpened records a newly opened dialectic session.
func (m *Metrics) RecordDialecticOpened() {
	m.DialecticSessionsOpened.Inc()
}

// RecordDialecticResolved records a resolved dialectic session outcome and
// the number of synthesis attempts it took to reach it.
func (m *Metrics) RecordDialecticResolved(outcome string, attempts int) {
	m.DialecticSessionsResolved.WithLabelValues(outcome).Inc()
	m.DialecticSynthesisAttempts.Observe(float64(attempts))
}

// RecordLockAcquisition records a lock acquisition attempt outcome.
func (m *Metrics) RecordLockAcquisition(status string) {
	m.LockAcquisitionsTotal.WithLabelValues(status).Inc()
}

// SetLocksHeld publishes the current count of held locks.
func (m *Metrics) SetLocksHeld(n int) {
	m.LocksHeld.Set(float64(n))
}

// UpdateUptime refreshes the service-uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("GOVERNANCE_ENV")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled reports whether the metrics endpoint should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init initializes (once) and returns the process-wide Metrics instance.
func Init(serviceName, version string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(serviceName, version)
	}
	return global
}

// Global returns the process-wide Metrics instance, initializing a
// placeholder one if Init was never called (e.g. in tests).
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("agent-governance", "dev")
	}
	return global
}
