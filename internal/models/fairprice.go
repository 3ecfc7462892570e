package models

// DevigMethod identifies the vig-removal technique that produced a fair price
type DevigMethod string

const (
	DevigMultiplicative DevigMethod = "multiplicative"
	DevigShin           DevigMethod = "shin"
	DevigMedian         DevigMethod = "median"
)

// FairPrice is a devigged probability for one outcome of an event.
// SharpnessRank orders bookmakers by historical pricing accuracy; higher
// ranks are preferred when books disagree.
type FairPrice struct {
	EventID         string      `db:"event_id" json:"event_id" validate:"required"`
	OutcomeLabel    string      `db:"outcome_label" json:"outcome_label" validate:"required"`
	DecimalOdds     float64     `db:"decimal_odds" json:"decimal_odds" validate:"gt=1"`
	FairProbability float64     `db:"fair_probability" json:"fair_probability" validate:"gte=0,lte=1"`
	BookmakerName   string      `db:"bookmaker_name" json:"bookmaker_name"`
	SharpnessRank   int         `db:"sharpness_rank" json:"sharpness_rank"`
	Method          DevigMethod `db:"method" json:"method"`
}

// FairOdds returns the zero-vig decimal odds implied by the fair probability
func (f *FairPrice) FairOdds() float64 {
	if f.FairProbability <= 0 {
		return 0
	}
	return 1.0 / f.FairProbability
}

// Vig returns the margin the bookmaker embedded in this outcome's quote,
// as implied probability minus fair probability
func (f *FairPrice) Vig() float64 {
	if f.DecimalOdds <= 1 {
		return 0
	}
	return 1.0/f.DecimalOdds - f.FairProbability
}
