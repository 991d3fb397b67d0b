package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Track attempts by action and outcome (tracked, rate_limited, invalid, error).
	TrackActionsTotal *prometheus.CounterVec

	// One-way popularity flag flips. Watch for: unexpected repeat flips (should never happen).
	PopularityFlagFlipsTotal prometheus.Counter

	// Cache-store (redis) operation failures by op. Watch for: fail-open reads masking outages.
	CacheStoreErrorsTotal *prometheus.CounterVec

	// Queue worker batches by result (ok, empty, read_error).
	QueueBatchesTotal *prometheus.CounterVec

	// Per-message outcomes inside a batch (archived, parse_error, persist_error, archive_error).
	QueueMessagesTotal *prometheus.CounterVec

	// Upstream metadata API call rate by status class. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream API latency. Watch for: p95 > 2s (degradation), p99 approaching client timeout.
	UpstreamCallDuration *prometheus.HistogramVec

	// Token exchanges against the credential endpoint (hit rate lives in tokenCacheHitsTotal).
	TokenFetchesTotal *prometheus.CounterVec

	// Token cache hits. Misses = tokenFetchesTotal{status="success"}.
	TokenCacheHitsTotal prometheus.Counter

	// Stale-refresh sweeps by result (ok, empty, fetch_error, select_error).
	StaleRefreshTotal *prometheus.CounterVec

	// Rate limit denials at the HTTP layer (429). Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	TrackActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackActionsTotal",
			Help: "Popularity track attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	PopularityFlagFlipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "popularityFlagFlipsTotal",
			Help: "Games flagged popular (one-way transition, fires once per game)",
		},
	)
	CacheStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStoreErrorsTotal",
			Help: "Cache store operation failures",
		},
		[]string{"op"},
	)
	QueueBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueBatchesTotal",
			Help: "Ingestion worker batch invocations by result",
		},
		[]string{"result"},
	)
	QueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueMessagesTotal",
			Help: "Per-message outcomes inside ingestion batches",
		},
		[]string{"result"},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream metadata API calls",
		},
		[]string{"status"},
	)
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamCallDurationSeconds",
			Help:    "Upstream metadata API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	TokenFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenFetchesTotal",
			Help: "Credential exchanges against the upstream token endpoint",
		},
		[]string{"status"},
	)
	TokenCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenCacheHitsTotal",
			Help: "Bearer token served from cache without an upstream exchange",
		},
	)
	StaleRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleRefreshTotal",
			Help: "Stale-game refresh sweeps by result",
		},
		[]string{"result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		TrackActionsTotal, PopularityFlagFlipsTotal, CacheStoreErrorsTotal,
		QueueBatchesTotal, QueueMessagesTotal,
		UpstreamCallsTotal, UpstreamCallDuration,
		TokenFetchesTotal, TokenCacheHitsTotal,
		StaleRefreshTotal, RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
