package models

import "time"

// QualityGrade buckets an edge signal's quality score
type QualityGrade string

const (
	GradeA QualityGrade = "A"
	GradeB QualityGrade = "B"
	GradeC QualityGrade = "C"
	GradeD QualityGrade = "D"
)

// Quality score breakpoints. Fixed and deterministic: the grade is a pure
// function of the score.
const (
	GradeAMinScore = 70.0
	GradeBMinScore = 55.0
	GradeCMinScore = 35.0
)

// GradeForScore maps a quality score in [0,100] to its grade band
func GradeForScore(score float64) QualityGrade {
	switch {
	case score >= GradeAMinScore:
		return GradeA
	case score >= GradeBMinScore:
		return GradeB
	case score >= GradeCMinScore:
		return GradeC
	default:
		return GradeD
	}
}

func (g QualityGrade) rank() int {
	switch g {
	case GradeA:
		return 4
	case GradeB:
		return 3
	case GradeC:
		return 2
	case GradeD:
		return 1
	}
	return 0
}

// AtLeast reports whether g is the same grade as other or better
func (g QualityGrade) AtLeast(other QualityGrade) bool {
	return g.rank() >= other.rank()
}

// SignalStrength classifies how actionable an edge signal is
type SignalStrength string

const (
	SignalStrong   SignalStrength = "STRONG"
	SignalModerate SignalStrength = "MODERATE"
	SignalWeak     SignalStrength = "WEAK"
)

// SourceContribution records one source's input to an aggregated signal
type SourceContribution struct {
	Key            SourceKey `json:"key"`
	Probability    float64   `json:"prob"`
	Weight         float64   `json:"weight"`
	Detail         string    `json:"detail,omitempty"`
	MatchQuality   float64   `json:"match_quality,omitempty"`
	MatchValidated bool      `json:"match_validated,omitempty"`
}

// EdgeSignal is a point-in-time inference about a market's mispricing.
// Recomputed from scratch on every build; cached for serving but never
// treated as ground truth of the market's true probability.
type EdgeSignal struct {
	MarketID              string               `json:"market_id"`
	Sport                 Sport                `json:"sport,omitempty"`
	AggregatedProbability float64              `json:"aggregated_probability"`
	MarketProbability     float64              `json:"market_probability"`
	Divergence            float64              `json:"divergence"`
	SourceCount           int                  `json:"source_count"`
	QualityScore          float64              `json:"quality_score"`
	QualityGrade          QualityGrade         `json:"quality_grade"`
	SignalStrength        SignalStrength       `json:"signal_strength"`
	Sources               []SourceContribution `json:"sources,omitempty"`
	ComputedAt            time.Time            `json:"computed_at"`
}
