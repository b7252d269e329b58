// Package metrics holds the Prometheus collectors for the bot. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	orderLatency     *prometheus.HistogramVec
	exchangeRequests *prometheus.CounterVec
	exchangeErrors   *prometheus.CounterVec
	apiRequests      *prometheus.CounterVec
	apiErrors        *prometheus.CounterVec
	snipes           *prometheus.CounterVec
	activePositions  prometheus.Gauge
	activeOrders     prometheus.Gauge
}

// New creates the collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mexc_request_duration_seconds",
			Help:    "Latency of exchange REST calls.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		exchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mexc_requests_total",
			Help: "Exchange REST calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		exchangeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mexc_errors_total",
			Help: "Exchange REST failures by operation and error class.",
		}, []string{"op", "class"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Inbound HTTP requests.",
		}, []string{"method", "route", "code"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Inbound HTTP requests answered with a 5xx status.",
		}, []string{"method", "route"}),
		snipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snipes_total",
			Help: "Snipe attempts by result.",
		}, []string{"result"}),
		activePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Open positions seen on the last scan.",
		}),
		activeOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_orders",
			Help: "Orders in open status seen on the last scan.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orderLatency, m.exchangeRequests, m.exchangeErrors,
		m.apiRequests, m.apiErrors, m.snipes,
		m.activePositions, m.activeOrders,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveExchange records one exchange call. class is empty on success.
func (m *Metrics) ObserveExchange(op string, d time.Duration, class string) {
	if m == nil {
		return
	}
	m.orderLatency.WithLabelValues(op).Observe(d.Seconds())
	if class == "" {
		m.exchangeRequests.WithLabelValues(op, "ok").Inc()
		return
	}
	m.exchangeRequests.WithLabelValues(op, "error").Inc()
	m.exchangeErrors.WithLabelValues(op, class).Inc()
}

// ObserveAPI records one inbound HTTP request.
func (m *Metrics) ObserveAPI(method, route string, code int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	if code >= 500 {
		m.apiErrors.WithLabelValues(method, route).Inc()
	}
}

// ObserveSnipe records a snipe attempt result ("sniped", "failed", "partial").
func (m *Metrics) ObserveSnipe(result string) {
	if m == nil {
		return
	}
	m.snipes.WithLabelValues(result).Inc()
}

// SetActivePositions sets the open position gauge.
func (m *Metrics) SetActivePositions(n int) {
	if m == nil {
		return
	}
	m.activePositions.Set(float64(n))
}

// SetActiveOrders sets the open order gauge.
func (m *Metrics) SetActiveOrders(n int) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(n))
}
