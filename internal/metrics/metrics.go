package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission pipeline metrics.
	AdmissionOutcomesTotal   *prometheus.CounterVec
	AdmissionRejectionsTotal *prometheus.CounterVec
	RedactionsTotal          *prometheus.CounterVec
	ActiveRequests           prometheus.Gauge

	// Upstream provider metrics.
	UpstreamDuration    prometheus.Histogram
	UpstreamErrorsTotal *prometheus.CounterVec

	// Settlement and audit metrics.
	SettlementFailuresTotal prometheus.Counter
	AuditWriteFailuresTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"kind", "method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "method", "path_pattern"}),

		AdmissionOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgate_admission_outcomes_total",
			Help: "Audited pipeline outcomes by terminal status.",
		}, []string{"status"}),

		AdmissionRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgate_admission_rejections_total",
			Help: "Requests rejected before forwarding, by pipeline stage.",
		}, []string{"stage"}),

		RedactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgate_redactions_total",
			Help: "Redacted content categories in forwarded prompts.",
		}, []string{"category"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptgate_active_requests",
			Help: "Number of requests currently in the admission pipeline.",
		}),

		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptgate_upstream_duration_seconds",
			Help:    "Upstream completion call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptgate_upstream_errors_total",
			Help: "Total number of upstream request errors by error type.",
		}, []string{"error_type"}),

		SettlementFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptgate_settlement_failures_total",
			Help: "Budget settlements that failed after a successful completion.",
		}),

		AuditWriteFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptgate_audit_write_failures_total",
			Help: "Audit records that could not be persisted.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptgate_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdmissionOutcomesTotal,
		m.AdmissionRejectionsTotal,
		m.RedactionsTotal,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrorsTotal,
		m.SettlementFailuresTotal,
		m.AuditWriteFailuresTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncHTTPRequest increments the HTTP request counter.
func (m *Metrics) IncHTTPRequest(kind, method, pathPattern string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(kind, method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
}

// ObserveHTTPDuration records an HTTP request duration.
func (m *Metrics) ObserveHTTPDuration(kind, method, pathPattern string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(kind, method, pathPattern).Observe(seconds)
}

// IncOutcome increments the counter for an audited terminal status.
func (m *Metrics) IncOutcome(status string) {
	m.AdmissionOutcomesTotal.WithLabelValues(status).Inc()
}

// IncRejection increments the rejection counter for a pipeline stage.
func (m *Metrics) IncRejection(stage string) {
	m.AdmissionRejectionsTotal.WithLabelValues(stage).Inc()
}

// IncRedaction increments the redaction counter for a content category.
func (m *Metrics) IncRedaction(category string) {
	m.RedactionsTotal.WithLabelValues(category).Inc()
}

// ObserveUpstreamDuration records the upstream completion call duration.
func (m *Metrics) ObserveUpstreamDuration(seconds float64) {
	m.UpstreamDuration.Observe(seconds)
}

// IncUpstreamError increments the upstream error counter by error type.
func (m *Metrics) IncUpstreamError(errorType string) {
	m.UpstreamErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncSettlementFailure increments the settlement failure counter.
func (m *Metrics) IncSettlementFailure() {
	m.SettlementFailuresTotal.Inc()
}

// IncAuditWriteFailure increments the audit write failure counter.
func (m *Metrics) IncAuditWriteFailure() {
	m.AuditWriteFailuresTotal.Inc()
}

// IncActiveRequests increments the in-flight request gauge.
func (m *Metrics) IncActiveRequests() {
	m.ActiveRequests.Inc()
}

// DecActiveRequests decrements the in-flight request gauge.
func (m *Metrics) DecActiveRequests() {
	m.ActiveRequests.Dec()
}
