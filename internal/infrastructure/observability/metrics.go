package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics. It records payment lifecycle
// outcomes for the service and gateway calls for the circuit breaker.
type Metrics struct {
	// Lifecycle metrics
	LifecycleTotal     *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Gateway metrics
	GatewayDuration     *prometheus.HistogramVec
	GatewayErrors       *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	// Sweep metrics
	SweepExpiredTotal prometheus.Counter
	SweepDuration     prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		LifecycleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_total",
				Help:      "Payment lifecycle operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensation_total",
				Help:      "Inventory compensations by outcome (released, skipped, failed)",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification dispatches by outcome",
			},
			[]string{"outcome"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_duration_seconds",
				Help:      "Payment gateway call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		GatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_errors_total",
				Help:      "Failed payment gateway calls",
			},
			[]string{"operation"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		SweepExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_expired_total",
				Help:      "Payments expired by the sweep",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Expiry sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.LifecycleTotal,
		m.CompensationsTotal,
		m.NotificationsTotal,
		m.GatewayDuration,
		m.GatewayErrors,
		m.CircuitBreakerState,
		m.SweepExpiredTotal,
		m.SweepDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

func (m *Metrics) RecordLifecycle(operation, outcome string) {
	m.LifecycleTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordCompensation(outcome string) {
	m.CompensationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(outcome string) {
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSweep(expired int, d time.Duration) {
	m.SweepExpiredTotal.Add(float64(expired))
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveGatewayCall(operation string, d time.Duration, err error) {
	m.GatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.GatewayErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) SetCircuitState(name string, state float64) {
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}
