package extra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const METRICS_PATH = "/metrics"

// Metrics holds the server's Prometheus collectors on a private registry so
// tests can run several servers in one process without duplicate-registration
// panics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics builds the collector set. sessionCount and handleCount are
// sampled on scrape.
func NewMetrics(sessionCount func() int, handleCount func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphmem",
			Name:      "requests_total",
			Help:      "Dispatched JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphmem",
			Name:      "request_duration_seconds",
			Help:      "Handler execution time by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration)
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "graphmem",
		Name:      "active_sessions",
		Help:      "Currently registered sessions.",
	}, func() float64 { return float64(sessionCount()) }))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "graphmem",
		Name:      "open_database_handles",
		Help:      "Currently open graph database handles.",
	}, func() float64 { return float64(handleCount()) }))
	registry.MustRegister(collectors.NewGoCollector())

	return m
}

// ObserveDispatch records one dispatched request. Plugged into the input
// processor as its dispatch observer.
func (m *Metrics) ObserveDispatch(method string, failed bool, elapsed time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
