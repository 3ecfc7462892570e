// Package metrics defines edge and accumulator specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine counter vectors
var (
	EdgesFoundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "edges_found_total",
		Help:      "Total number of edges found by grade",
	}, []string{"grade"})

	AccumulatorsBuiltTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "accumulators_built_total",
		Help:      "Total number of accumulators built by grade",
	}, []string{"grade"})

	PickOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market_engine",
		Name:      "pick_outcomes_total",
		Help:      "Total number of resolved picks by result",
	}, []string{"result"})
)

// Engine histogram vectors
var (
	EdgeQualityScore = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "edge_quality_score",
		Help:      "Quality scores of found edges by grade",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	}, []string{"grade"})

	AccumulatorEVPercent = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "market_engine",
		Name:      "accumulator_ev_percent",
		Help:      "Expected value of built accumulators in percent",
		Buckets:   []float64{-10, 0, 2, 5, 10, 15, 20, 30, 50},
	})
)

// Engine gauge vectors
var (
	LearningMultiplier = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "market_engine",
		Name:      "learning_multiplier",
		Help:      "Current calibration multiplier for each category",
	}, []string{"category"})
)

// RecordEdgeFound records one found edge.
func RecordEdgeFound(grade string, qualityScore float64) {
	EdgesFoundTotal.WithLabelValues(grade).Inc()
	EdgeQualityScore.WithLabelValues(grade).Observe(qualityScore)
}

// RecordAccumulatorBuilt records one built accumulator.
func RecordAccumulatorBuilt(grade string, evPercent float64) {
	AccumulatorsBuiltTotal.WithLabelValues(grade).Inc()
	AccumulatorEVPercent.Observe(evPercent)
}

// RecordPickOutcome records a resolved pick outcome.
// result should be one of: "won", "lost", "push"
func RecordPickOutcome(result string) {
	PickOutcomesTotal.WithLabelValues(result).Inc()
}

// UpdateLearningMultiplier updates the calibration multiplier gauge for a category.
func UpdateLearningMultiplier(category string, multiplier float64) {
	LearningMultiplier.WithLabelValues(category).Set(multiplier)
}
