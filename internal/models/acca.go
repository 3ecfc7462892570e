package models

import (
	"time"

	"github.com/google/uuid"
)

// AccaGrade tiers a proposed accumulator. Assigned from a composite of EV,
// confidence width and per-leg data quality, never from EV alone.
type AccaGrade string

const (
	AccaGradeS AccaGrade = "S"
	AccaGradeA AccaGrade = "A"
	AccaGradeB AccaGrade = "B"
	AccaGradeC AccaGrade = "C"
)

func (g AccaGrade) rank() int {
	switch g {
	case AccaGradeS:
		return 4
	case AccaGradeA:
		return 3
	case AccaGradeB:
		return 2
	case AccaGradeC:
		return 1
	}
	return 0
}

// AtLeast reports whether g is the same tier as other or better
func (g AccaGrade) AtLeast(other AccaGrade) bool {
	return g.rank() >= other.rank()
}

// AccaLeg is one candidate leg of an accumulator. FairProbability is the
// devigged probability of the offering book; ProbabilitySigma carries the
// cross-source disagreement used for confidence intervals.
type AccaLeg struct {
	EventID          string    `json:"event_id" validate:"required"`
	Sport            Sport     `json:"sport" validate:"required"`
	Pick             string    `json:"pick" validate:"required"`
	BetType          BetType   `json:"bet_type" validate:"required,oneof=MONEYLINE SPREAD TOTAL"`
	DecimalOdds      float64   `json:"decimal_odds" validate:"gt=1"`
	FairProbability  float64   `json:"fair_probability" validate:"gte=0,lte=1"`
	BookmakerName    string    `json:"bookmaker_name"`
	ProbabilitySigma float64   `json:"probability_sigma"`
	QualityScore     float64   `json:"quality_score"`
	EventStart       time.Time `json:"event_start"`
	QuotedAt         time.Time `json:"quoted_at"`
}

// EVInterval is a low/high band around an accumulator's expected value
type EVInterval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width returns the span of the interval
func (i EVInterval) Width() float64 {
	return i.High - i.Low
}

// Accumulator is a proposed multi-leg wager. Built from scratch each scan
// and replaced wholesale, never mutated in place.
type Accumulator struct {
	ID                             uuid.UUID  `json:"id"`
	Legs                           []AccaLeg  `json:"legs"`
	CombinedOdds                   float64    `json:"combined_odds"`
	IndependentProbability         float64    `json:"independent_probability"`
	CorrelationAdjustedProbability float64    `json:"correlation_adjusted_probability"`
	EVPercent                      float64    `json:"ev_percent"`
	EVConfidence                   EVInterval `json:"ev_confidence"`
	Grade                          AccaGrade  `json:"grade"`
	KellyStake                     float64    `json:"kelly_stake"`
	AvgCorrelation                 float64    `json:"avg_correlation"`
	CrossSport                     bool       `json:"cross_sport"`
	Skeptical                      bool       `json:"skeptical"`
	SkepticNote                    string     `json:"skeptic_note,omitempty"`
	CreatedAt                      time.Time  `json:"created_at"`
}

// Validate checks the structural invariants: at least two legs, all legs on
// distinct events
func (a *Accumulator) Validate() error {
	if len(a.Legs) < 2 {
		return ErrInvalidAccumulator
	}
	seen := make(map[string]struct{}, len(a.Legs))
	for _, leg := range a.Legs {
		if _, dup := seen[leg.EventID]; dup {
			return ErrInvalidAccumulator
		}
		seen[leg.EventID] = struct{}{}
	}
	return nil
}

// EventIDs returns the distinct event ids across the legs
func (a *Accumulator) EventIDs() []string {
	ids := make([]string, 0, len(a.Legs))
	for _, leg := range a.Legs {
		ids = append(ids, leg.EventID)
	}
	return ids
}

// Sports returns the set of sports covered by the legs
func (a *Accumulator) Sports() map[Sport]int {
	out := make(map[Sport]int)
	for _, leg := range a.Legs {
		out[leg.Sport]++
	}
	return out
}
