// Package metrics provides centralized Prometheus metrics registry for the market engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "builds_total",
		Help:      "Total number of build passes started",
	})
	BuildsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "builds_failed_total",
		Help:      "Total number of build passes that failed",
	})
	MarketsScannedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "markets_scanned_total",
		Help:      "Total number of markets analyzed across all builds",
	})
	MarketsExcludedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "markets_excluded_total",
		Help:      "Total number of markets excluded as started or stale",
	})
	PicksProposedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "picks_proposed_total",
		Help:      "Total number of accumulator picks proposed",
	})
	ResolutionPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "resolution_passes_total",
		Help:      "Total number of outcome resolution passes",
	})
)

// Gauge metrics
var (
	SnapshotVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "snapshot_version",
		Help:      "Version number of the currently served snapshot",
	})
	SnapshotAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "snapshot_age_seconds",
		Help:      "Age of the currently served snapshot in seconds",
	})
	EdgesServed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "edges_served",
		Help:      "Number of edges in the current snapshot",
	})
	AccumulatorsServed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "accumulators_served",
		Help:      "Number of accumulators in the current snapshot",
	})
	PendingPicks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "pending_picks",
		Help:      "Number of picks awaiting resolution",
	})
	OpenExposure = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "open_exposure",
		Help:      "Total stake across unresolved picks in currency units",
	})
	Bankroll = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "bankroll",
		Help:      "Configured bankroll in currency units",
	})
)

// Histogram metrics
var (
	BuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "build_duration_seconds",
		Help:      "Duration of build passes in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})
	MarketAnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "market_analysis_duration_seconds",
		Help:      "Duration of single-market analysis in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	ResolutionPassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "resolution_pass_duration_seconds",
		Help:      "Duration of outcome resolution passes in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(BuildsTotal)
		registry.MustRegister(BuildsFailedTotal)
		registry.MustRegister(MarketsScannedTotal)
		registry.MustRegister(MarketsExcludedTotal)
		registry.MustRegister(PicksProposedTotal)
		registry.MustRegister(ResolutionPassesTotal)

		// Register gauge metrics
		registry.MustRegister(SnapshotVersion)
		registry.MustRegister(SnapshotAgeSeconds)
		registry.MustRegister(EdgesServed)
		registry.MustRegister(AccumulatorsServed)
		registry.MustRegister(PendingPicks)
		registry.MustRegister(OpenExposure)
		registry.MustRegister(Bankroll)

		// Register histogram metrics
		registry.MustRegister(BuildDuration)
		registry.MustRegister(MarketAnalysisDuration)
		registry.MustRegister(ResolutionPassDuration)

		// Register source metrics
		registry.MustRegister(SourceRequestsTotal)
		registry.MustRegister(SourceLatency)
		registry.MustRegister(SourceCacheTotal)
		registry.MustRegister(SourceBreakerTripsTotal)
		registry.MustRegister(SourceMatchQuality)

		// Register engine metrics
		registry.MustRegister(EdgesFoundTotal)
		registry.MustRegister(AccumulatorsBuiltTotal)
		registry.MustRegister(PickOutcomesTotal)
		registry.MustRegister(EdgeQualityScore)
		registry.MustRegister(AccumulatorEVPercent)
		registry.MustRegister(LearningMultiplier)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordBuildStarted records the start of a build pass.
func RecordBuildStarted() {
	BuildsTotal.Inc()
}

// RecordBuildFailed records a failed build pass.
func RecordBuildFailed() {
	BuildsFailedTotal.Inc()
}

// RecordBuildCompleted records a completed build pass.
func RecordBuildCompleted(durationSeconds float64) {
	BuildDuration.Observe(durationSeconds)
}

// RecordMarketScanned records one analyzed market.
func RecordMarketScanned(durationSeconds float64) {
	MarketsScannedTotal.Inc()
	MarketAnalysisDuration.Observe(durationSeconds)
}

// RecordMarketExcluded records a market dropped before analysis.
func RecordMarketExcluded() {
	MarketsExcludedTotal.Inc()
}

// RecordPickProposed records a proposed pick.
func RecordPickProposed() {
	PicksProposedTotal.Inc()
}

// RecordResolutionPass records an outcome resolution pass.
func RecordResolutionPass(durationSeconds float64) {
	ResolutionPassesTotal.Inc()
	ResolutionPassDuration.Observe(durationSeconds)
}

// UpdateSnapshot updates the snapshot gauges after a publish.
func UpdateSnapshot(version uint64, edges, accumulators int) {
	SnapshotVersion.Set(float64(version))
	SnapshotAgeSeconds.Set(0)
	EdgesServed.Set(float64(edges))
	AccumulatorsServed.Set(float64(accumulators))
}

// UpdateSnapshotAge updates the snapshot age gauge.
func UpdateSnapshotAge(seconds float64) {
	SnapshotAgeSeconds.Set(seconds)
}

// UpdatePendingPicks updates the pending picks gauge.
func UpdatePendingPicks(count float64) {
	PendingPicks.Set(count)
}

// UpdateOpenExposure updates the open exposure gauge.
func UpdateOpenExposure(amount float64) {
	OpenExposure.Set(amount)
}

// UpdateBankroll updates the bankroll gauge.
func UpdateBankroll(amount float64) {
	Bankroll.Set(amount)
}
