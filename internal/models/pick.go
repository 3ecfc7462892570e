package models

import (
	"time"

	"github.com/google/uuid"
)

// LegResult is the terminal (or pending) outcome of one pick leg
type LegResult string

const (
	LegResultWon     LegResult = "won"
	LegResultLost    LegResult = "lost"
	LegResultPush    LegResult = "push"
	LegResultPending LegResult = "pending"
)

// IsTerminal reports whether the result is final
func (r LegResult) IsTerminal() bool {
	return r == LegResultWon || r == LegResultLost || r == LegResultPush
}

// PickStatus tracks a pick through settlement
type PickStatus string

const (
	PickStatusPending          PickStatus = "pending"
	PickStatusPartiallySettled PickStatus = "partially_settled"
	PickStatusResolved         PickStatus = "resolved"
)

// PickLeg pairs a leg with its settlement result
type PickLeg struct {
	Leg       AccaLeg    `json:"leg"`
	Result    LegResult  `json:"result"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// ResolvedPick is the durable record of a proposed accumulator tracked
// through settlement. Append-only once resolved: PnL is computed exactly
// once at the resolved transition and never edited afterwards.
type ResolvedPick struct {
	PickID              uuid.UUID  `db:"pick_id" json:"pick_id"`
	AccaID              uuid.UUID  `db:"acca_id" json:"acca_id"`
	BuildID             uuid.UUID  `db:"build_id" json:"build_id"`
	Legs                []PickLeg  `db:"legs" json:"legs"`
	Status              PickStatus `db:"status" json:"status"`
	OverallResult       LegResult  `db:"overall_result" json:"overall_result"`
	Stake               float64    `db:"stake" json:"stake"`
	CombinedOdds        float64    `db:"combined_odds" json:"combined_odds"`
	AdjustedProbability float64    `db:"adjusted_probability" json:"adjusted_probability"`
	EVPercent           float64    `db:"ev_percent" json:"ev_percent"`
	Grade               AccaGrade  `db:"grade" json:"grade"`
	PnL                 *float64   `db:"pnl" json:"pnl,omitempty"`
	SavedAt             time.Time  `db:"saved_at" json:"saved_at"`
	ResolvedAt          *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsResolved reports whether every leg has settled and PnL is final
func (p *ResolvedPick) IsResolved() bool {
	return p.Status == PickStatusResolved && p.ResolvedAt != nil
}

// PendingLegCount returns how many legs still await a result
func (p *ResolvedPick) PendingLegCount() int {
	n := 0
	for _, l := range p.Legs {
		if !l.Result.IsTerminal() {
			n++
		}
	}
	return n
}

// RealizedPnL returns the final profit or loss, or 0 if unresolved
func (p *ResolvedPick) RealizedPnL() float64 {
	if p.PnL == nil {
		return 0
	}
	return *p.PnL
}
