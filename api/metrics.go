package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics owns a private registry so several handlers (tests) can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	shiftsClosed      prometheus.Counter
	shiftVariance     prometheus.Histogram
	receiptsConfirmed *prometheus.CounterVec
	receivedUnits     prometheus.Counter
	sessionsExpired   *prometheus.CounterVec
	activeSessions    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storeops",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		shiftsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storeops",
			Name:      "shifts_closed_total",
			Help:      "Shifts finalized through the close wizard.",
		}),
		shiftVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storeops",
			Name:      "shift_variance_abs",
			Help:      "Absolute drawer variance at close.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),
		receiptsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storeops",
			Name:      "receipts_confirmed_total",
			Help:      "Shipments confirmed, by outcome.",
		}, []string{"outcome"}),
		receivedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storeops",
			Name:      "received_units_total",
			Help:      "Units received across confirmed shipments.",
		}),
		sessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storeops",
			Name:      "sessions_expired_total",
			Help:      "Idle wizard sessions discarded by the sweeper.",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "storeops",
			Name:      "sessions_active",
			Help:      "Open wizard sessions.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.shiftsClosed,
		m.shiftVariance,
		m.receiptsConfirmed,
		m.receivedUnits,
		m.sessionsExpired,
		m.activeSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(method, route, status string, seconds float64) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) shiftClosed(variance decimal.Decimal) {
	m.shiftsClosed.Inc()
	m.shiftVariance.Observe(variance.Abs().InexactFloat64())
}

func (m *Metrics) receiptConfirmed(discrepant bool, units int) {
	outcome := "clean"
	if discrepant {
		outcome = "discrepant"
	}
	m.receiptsConfirmed.WithLabelValues(outcome).Inc()
	m.receivedUnits.Add(float64(units))
}

func (m *Metrics) sessionExpired(kind string) {
	m.sessionsExpired.WithLabelValues(kind).Inc()
}

func (m *Metrics) setActive(kind string, n int) {
	m.activeSessions.WithLabelValues(kind).Set(float64(n))
}
