package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry. All methods are safe on a nil receiver so
// components can run with metrics disabled.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	providerRequests  *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	refreshDocuments  *prometheus.CounterVec
	retrievalRequests *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_provider_requests_total",
				Help: "Embedding and generation provider calls",
			},
			[]string{"provider", "op", "status"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_provider_request_duration_seconds",
				Help:    "Provider call latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"provider", "op"},
		),
		refreshDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_embedding_refresh_documents_total",
				Help: "Documents seen by embedding refresh, by outcome",
			},
			[]string{"outcome"},
		),
		retrievalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_retrieval_requests_total",
				Help: "Retrieval requests by ranking mode actually used",
			},
			[]string{"mode"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.providerRequests,
		m.providerLatency,
		m.refreshDocuments,
		m.retrievalRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveProvider(provider, op string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerRequests.WithLabelValues(provider, op, status).Inc()
	m.providerLatency.WithLabelValues(provider, op).Observe(dur.Seconds())
}

func (m *Metrics) AddRefreshDocuments(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshDocuments.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncRetrieval(mode string) {
	if m == nil {
		return
	}
	m.retrievalRequests.WithLabelValues(mode).Inc()
}
