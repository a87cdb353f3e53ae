// Package observability wires Prometheus metrics and OpenTelemetry spans
// around the request pipeline and guest invocation, trimmed to a single
// concrete implementation.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the server updates on every
// request and guest invocation.
type Metrics struct {
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	GuestFaultTotal prometheus.Counter
	InFlight        prometheus.Gauge
}

// NewMetrics registers the collectors against reg and returns a Metrics
// handle. Pass prometheus.NewRegistry() for an isolated registry in tests,
// or prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corvid_requests_total",
			Help: "Total requests processed, labeled by method, route pattern, and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corvid_request_duration_seconds",
			Help:    "Request handling latency in seconds, labeled by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		GuestFaultTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corvid_guest_faults_total",
			Help: "Total guest handler faults caught by the adapter's fault catcher.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corvid_in_flight_requests",
			Help: "Number of requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestTotal, m.RequestDuration, m.GuestFaultTotal, m.InFlight)

	return m
}

// ObserveRequest records a completed request's outcome. status is recorded
// as its class ("2xx", "4xx", ...).
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	statusLabel := statusBucket(status)
	m.RequestTotal.WithLabelValues(method, route, statusLabel).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncGuestFault increments the guest-fault counter.
func (m *Metrics) IncGuestFault() {
	m.GuestFaultTotal.Inc()
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
