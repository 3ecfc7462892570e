// Package metrics defines source-adapter-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Source counter vectors
var (
	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "source_requests_total",
		Help:      "Total number of source requests by source and status",
	}, []string{"source", "status"})

	SourceCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "source_cache_total",
		Help:      "Total number of source cache lookups by source and outcome",
	}, []string{"source", "outcome"})

	SourceBreakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "source_breaker_trips_total",
		Help:      "Total number of circuit breaker trips by source",
	}, []string{"source"})
)

// Source histogram vectors
var (
	SourceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "source_latency_seconds",
		Help:      "Latency of source requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})

	SourceMatchQuality = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "source_match_quality",
		Help:      "Market matching quality scores by source",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"source"})
)

// RecordSourceRequest records a source request outcome.
// status should be one of: "success", "error", "timeout", "rate_limited"
func RecordSourceRequest(source, status string) {
	SourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordSourceLatency records one source request latency.
func RecordSourceLatency(source string, durationSeconds float64) {
	SourceLatency.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSourceCacheHit records a source cache hit.
func RecordSourceCacheHit(source string) {
	SourceCacheTotal.WithLabelValues(source, "hit").Inc()
}

// RecordSourceCacheMiss records a source cache miss.
func RecordSourceCacheMiss(source string) {
	SourceCacheTotal.WithLabelValues(source, "miss").Inc()
}

// RecordSourceBreakerTrip records a circuit breaker trip for a source.
func RecordSourceBreakerTrip(source string) {
	SourceBreakerTripsTotal.WithLabelValues(source).Inc()
}

// RecordSourceMatchQuality records a market matching quality score.
func RecordSourceMatchQuality(source string, quality float64) {
	SourceMatchQuality.WithLabelValues(source).Observe(quality)
}
