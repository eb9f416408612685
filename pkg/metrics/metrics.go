// Package metrics defines the Prometheus metric collectors used across the
// relevancy engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesScoredTotal   *prometheus.CounterVec
	NDCGDistribution     prometheus.Histogram
	RollupStageDuration  *prometheus.HistogramVec
	RollupFailuresTotal  *prometheus.CounterVec
	SweepItemsTotal      *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SearchCallsTotal     *prometheus.CounterVec
	SearchCallDuration   prometheus.Histogram
	SnapshotsCreated     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesScoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevancy_queries_scored_total",
				Help: "Total query scoring operations by outcome (scored, unjudged, invalid, error).",
			},
			[]string{"outcome"},
		),
		NDCGDistribution: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relevancy_ndcg_score",
				Help:    "Distribution of computed NDCG scores.",
				Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		RollupStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relevancy_rollup_stage_duration_seconds",
				Help:    "Rollup pipeline stage latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),
		RollupFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevancy_rollup_failures_total",
				Help: "Total rollup failures by stage.",
			},
			[]string{"stage"},
		),
		SweepItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevancy_sweep_items_total",
				Help: "Total bulk sweep items by phase and status.",
			},
			[]string{"phase", "status"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relevancy_sweep_duration_seconds",
				Help:    "Duration of full recompute sweeps in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		SearchCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relevancy_search_calls_total",
				Help: "Total product search API calls by status (ok, error).",
			},
			[]string{"status"},
		),
		SearchCallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relevancy_search_call_duration_seconds",
				Help:    "Product search API call latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		SnapshotsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relevancy_snapshots_created_total",
				Help: "Total snapshots captured.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesScoredTotal,
		m.NDCGDistribution,
		m.RollupStageDuration,
		m.RollupFailuresTotal,
		m.SweepItemsTotal,
		m.SweepDuration,
		m.SearchCallsTotal,
		m.SearchCallDuration,
		m.SnapshotsCreated,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
