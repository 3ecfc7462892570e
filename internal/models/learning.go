package models

import "time"

// LearningAdjustment is a per-category scoring multiplier derived only from
// resolved picks. Multipliers above 1 boost future scoring for the category,
// below 1 suppress it; values are bounded in configuration to keep small
// samples from running away.
type LearningAdjustment struct {
	Category    string    `db:"category" json:"category" validate:"required"`
	Multiplier  float64   `db:"multiplier" json:"multiplier" validate:"gt=0"`
	SampleSize  int       `db:"sample_size" json:"sample_size" validate:"gte=0"`
	RealizedWin float64   `db:"realized_win" json:"realized_win"`
	ImpliedWin  float64   `db:"implied_win" json:"implied_win"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
