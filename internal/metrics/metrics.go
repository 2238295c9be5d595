package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the import pipeline and
// HTTP surface. One instance is registered per process.
type Metrics struct {
	registry *prometheus.Registry

	ImportsTotal      *prometheus.CounterVec
	ImportDuration    prometheus.Histogram
	CacheHitsTotal    prometheus.Counter
	ExtractionsTotal  *prometheus.CounterVec
	SearchesTotal     prometheus.Counter
	HTTPRequestsTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	BreakerState      *prometheus.GaugeVec
	EnrichmentJobs    *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decant_imports_total",
			Help: "Import requests by outcome (created, cached, error).",
		}, []string{"outcome"}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "decant_import_duration_seconds",
			Help:    "End-to-end import latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decant_import_cache_hits_total",
			Help: "Import cache hits.",
		}),
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decant_extractions_total",
			Help: "Extractions by content type and method.",
		}, []string{"content_type", "method"}),
		SearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decant_searches_total",
			Help: "Search requests served.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decant_http_requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decant_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decant_breaker_state",
			Help: "Circuit breaker state per name (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"}),
		EnrichmentJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decant_enrichment_jobs",
			Help: "Enrichment queue depth by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.ImportsTotal,
		m.ImportDuration,
		m.CacheHitsTotal,
		m.ExtractionsTotal,
		m.SearchesTotal,
		m.HTTPRequestsTotal,
		m.RateLimitedTotal,
		m.BreakerState,
		m.EnrichmentJobs,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
