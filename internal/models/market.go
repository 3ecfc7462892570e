package models

import "time"

// Sport identifies the sport or event category a market belongs to
type Sport string

const (
	SportNBA    Sport = "nba"
	SportNFL    Sport = "nfl"
	SportNHL    Sport = "nhl"
	SportMLB    Sport = "mlb"
	SportUFC    Sport = "ufc"
	SportSoccer Sport = "soccer"
)

// BetType represents the kind of line a leg is priced on
type BetType string

const (
	BetTypeMoneyline BetType = "MONEYLINE"
	BetTypeSpread    BetType = "SPREAD"
	BetTypeTotal     BetType = "TOTAL"
)

// Market is one tradeable discrete-outcome market together with its current
// venue quote. The feed regenerates these every scan; nothing downstream
// mutates them.
type Market struct {
	ID         string      `json:"id" validate:"required"`
	Question   string      `json:"question"`
	Sport      Sport       `json:"sport,omitempty"`
	EventID    string      `json:"event_id,omitempty"`
	EventStart time.Time   `json:"event_start,omitempty"`
	EndDate    time.Time   `json:"end_date,omitempty"`
	Quote      MarketQuote `json:"quote"`
}

// Started reports whether the underlying event has already begun
func (m *Market) Started(now time.Time) bool {
	return !m.EventStart.IsZero() && !m.EventStart.After(now)
}

// MarketQuote is an immutable point-in-time snapshot of a venue's quoted
// price for one outcome of a market
type MarketQuote struct {
	MarketID           string    `db:"market_id" json:"market_id" validate:"required"`
	OutcomeLabel       string    `db:"outcome_label" json:"outcome_label" validate:"required"`
	ImpliedProbability float64   `db:"implied_probability" json:"implied_probability" validate:"gte=0,lte=1"`
	Liquidity          float64   `db:"liquidity" json:"liquidity"`
	Volume             float64   `db:"volume" json:"volume"`
	ObservedAt         time.Time `db:"observed_at" json:"observed_at" validate:"required"`
}

// Age returns how long ago the quote was observed
func (q *MarketQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}

// IsStale reports whether the quote is older than the freshness window
func (q *MarketQuote) IsStale(now time.Time, window time.Duration) bool {
	return q.Age(now) > window
}

// BookQuote is one bookmaker's quoted decimal odds for a single outcome of
// an event. A full devig input is the set of BookQuotes covering every
// outcome of the event.
type BookQuote struct {
	EventID       string    `json:"event_id" validate:"required"`
	OutcomeLabel  string    `json:"outcome_label" validate:"required"`
	BookmakerName string    `json:"bookmaker_name" validate:"required"`
	DecimalOdds   float64   `json:"decimal_odds" validate:"required,gt=1"`
	SharpnessRank int       `json:"sharpness_rank"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ImpliedProbability returns the vig-inclusive probability 1/odds
func (b *BookQuote) ImpliedProbability() float64 {
	if b.DecimalOdds <= 1 {
		return 0
	}
	return 1.0 / b.DecimalOdds
}
