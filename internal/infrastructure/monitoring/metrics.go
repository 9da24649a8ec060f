package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the extension host. All record
// methods are safe on a nil *Metrics so components can run unobserved.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	ExtensionsByState *prometheus.GaugeVec
	Activations       *prometheus.CounterVec
	PromptsPending    prometheus.Gauge

	// Bridge metrics
	BridgeMessages *prometheus.CounterVec
	BridgeDuration *prometheus.HistogramVec
	SandboxFaults  *prometheus.CounterVec

	// Collaborator metrics
	RegistryFetch *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

// NewMetrics creates a collector backed by its own registry, so several hosts
// (or tests) in one process never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exthost_http_requests_total",
				Help: "Total number of console API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exthost_http_request_duration_seconds",
				Help:    "Console API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		ExtensionsByState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exthost_extensions",
				Help: "Number of extensions in each lifecycle state",
			},
			[]string{"state"},
		),
		Activations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exthost_activations_total",
				Help: "Activation attempts by outcome",
			},
			[]string{"outcome"},
		),
		PromptsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "exthost_permission_prompts_pending",
				Help: "Permission prompts waiting for a user decision",
			},
		),

		BridgeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exthost_bridge_messages_total",
				Help: "Bridge messages by event and dispatch outcome",
			},
			[]string{"event", "outcome"},
		),
		BridgeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exthost_bridge_dispatch_duration_seconds",
				Help:    "Capability dispatch duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"event"},
		),
		SandboxFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exthost_sandbox_faults_total",
				Help: "Faults surfaced by sandboxes by kind",
			},
			[]string{"kind"},
		),

		RegistryFetch: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exthost_registry_fetch_duration_seconds",
				Help:    "Registry fetch duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "exthost_ws_connections",
				Help: "Open console stream connections",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a console API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetExtensionStates replaces the per-state gauge values
func (m *Metrics) SetExtensionStates(counts map[string]int, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.ExtensionsByState.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// RecordActivation counts one activation attempt outcome
func (m *Metrics) RecordActivation(outcome string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(outcome).Inc()
}

// SetPromptsPending sets the prompt queue length
func (m *Metrics) SetPromptsPending(n int) {
	if m == nil {
		return
	}
	m.PromptsPending.Set(float64(n))
}

// RecordBridgeMessage counts one inbound message and its dispatch outcome
func (m *Metrics) RecordBridgeMessage(event, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(event, outcome).Inc()
	if duration > 0 {
		m.BridgeDuration.WithLabelValues(event).Observe(duration.Seconds())
	}
}

// RecordSandboxFault counts a fault reported by a sandbox
func (m *Metrics) RecordSandboxFault(kind string) {
	if m == nil {
		return
	}
	m.SandboxFaults.WithLabelValues(kind).Inc()
}

// ObserveRegistryFetch records one registry round trip
func (m *Metrics) ObserveRegistryFetch(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RegistryFetch.WithLabelValues(op, outcome).Observe(duration.Seconds())
}

// IncWSConnections increments open stream connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements open stream connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
