package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the session API. Watch for: sudden drops or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases (upstream slowness shows here).
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls per endpoint (weather, autocomplete, countries) and status.
	TransportCallsTotal *prometheus.CounterVec

	// Upstream latency per endpoint. Watch for: p95 > 2s (upstream degradation).
	TransportDuration *prometheus.HistogramVec

	// Weather searches by outcome (success, not_found, server_error, discarded).
	SearchesTotal *prometheus.CounterVec

	// Suggestion resolutions by outcome (ok, skipped, failed, stale).
	SuggestionResolutionsTotal *prometheus.CounterVec

	// History entries evicted because the cap was reached.
	HistoryEvictionsTotal prometheus.Counter

	// Country list size after bootstrap; 0 means the bootstrap is pending or failed.
	CountryListSize prometheus.Gauge

	// Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	// Country list loads by outcome (success, error).
	CountryBootstrapTotal *prometheus.CounterVec
	// Country list load duration.
	CountryBootstrapDurationSeconds prometheus.Histogram
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
	TransportCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transportCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"endpoint", "status"},
	)
	TransportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transportDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchesTotal",
			Help: "Total number of weather searches by outcome",
		},
		[]string{"outcome"},
	)
	SuggestionResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suggestionResolutionsTotal",
			Help: "Total number of city suggestion resolutions by outcome",
		},
		[]string{"outcome"},
	)
	HistoryEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyEvictionsTotal",
			Help: "Total number of history entries evicted by the size cap",
		},
	)
	CountryListSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "countryListSize",
			Help: "Number of countries loaded at bootstrap",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"component"},
	)
	CountryBootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countryBootstrapTotal",
			Help: "Total number of country list loads by outcome",
		},
		[]string{"outcome"},
	)
	CountryBootstrapDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "countryBootstrapDurationSeconds",
			Help:    "Country list load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		TransportCallsTotal, TransportDuration,
		SearchesTotal, SuggestionResolutionsTotal, HistoryEvictionsTotal,
		CountryListSize, CircuitBreakerState,
		CountryBootstrapTotal, CountryBootstrapDurationSeconds,
	)
}

// SetCircuitBreakerState records the breaker state for component using the breaker's
// state label ("closed", "half-open", "open").
func SetCircuitBreakerState(component, state string) {
	CircuitBreakerState.WithLabelValues(component).Set(circuitBreakerStateValue(state))
}

func circuitBreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
