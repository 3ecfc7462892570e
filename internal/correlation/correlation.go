package correlation

import (
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Config holds the correlation coefficient table. Coefficients are
// configuration, not law: the defaults are conservative estimates and the
// safety margin inflates them further so correlated EV is understated
// rather than overstated.
type Config struct {
	// SameEventBase is the base coefficient for two legs on the same event,
	// keyed by sport
	SameEventBase map[models.Sport]float64

	// SameEventLineMix applies instead of the base when a same-event pair
	// mixes a TOTAL with a SPREAD or MONEYLINE line, which co-move more
	// than two independent picks
	SameEventLineMix float64

	// SameSport is the coefficient for legs on distinct events within one
	// sport
	SameSport float64

	// CrossSport is the coefficient for legs sharing nothing
	CrossSport float64

	// SafetyMargin inflates every positive coefficient relatively, e.g.
	// 0.30 turns 0.35 into 0.455
	SafetyMargin float64

	// PenaltyWeight scales how strongly average correlation derates the
	// independent probability
	PenaltyWeight float64
}

// DefaultConfig returns the standard correlation table
func DefaultConfig() Config {
	return Config{
		SameEventBase: map[models.Sport]float64{
			models.SportNBA:    0.35,
			models.SportNFL:    0.35,
			models.SportNHL:    0.35,
			models.SportMLB:    0.35,
			models.SportSoccer: 0.35,
			models.SportUFC:    0.30,
		},
		SameEventLineMix: 0.45,
		SameSport:        0.05,
		CrossSport:       0.02,
		SafetyMargin:     0.30,
		PenaltyWeight:    0.5,
	}
}

// FromConfig converts app config to a correlation table. Sports absent from
// the configured same-event map keep their default base coefficients.
func FromConfig(cfg config.CorrelationConfig) Config {
	out := DefaultConfig()
	out.SameEventLineMix = cfg.SameEventLineMix
	out.SameSport = cfg.SameSport
	out.CrossSport = cfg.CrossSport
	out.SafetyMargin = cfg.SafetyMargin
	out.PenaltyWeight = cfg.PenaltyWeight
	for sport, base := range cfg.SameEventBase {
		out.SameEventBase[models.Sport(sport)] = base
	}
	return out
}

// Model supplies pairwise leg correlations and the resulting probability
// derating
type Model struct {
	cfg Config
}

// New creates a correlation Model
func New(cfg Config) *Model {
	if cfg.SameEventBase == nil {
		cfg.SameEventBase = DefaultConfig().SameEventBase
	}
	if cfg.SameEventLineMix == 0 {
		cfg.SameEventLineMix = 0.45
	}
	if cfg.PenaltyWeight == 0 {
		cfg.PenaltyWeight = 0.5
	}
	return &Model{cfg: cfg}
}

// Coefficient returns the safety-inflated correlation between two legs,
// clamped to [-1, 1]
func (m *Model) Coefficient(a, b models.AccaLeg) float64 {
	var base float64
	switch {
	case a.EventID == b.EventID:
		base = m.sameEvent(a, b)
	case a.Sport == b.Sport:
		base = m.cfg.SameSport
	default:
		base = m.cfg.CrossSport
	}
	if base > 0 {
		base *= 1 + m.cfg.SafetyMargin
	}
	return clamp(base, -1, 1)
}

func (m *Model) sameEvent(a, b models.AccaLeg) float64 {
	base, ok := m.cfg.SameEventBase[a.Sport]
	if !ok {
		base = 0.35
	}
	if mixesTotal(a.BetType, b.BetType) {
		return m.cfg.SameEventLineMix
	}
	return base
}

func mixesTotal(x, y models.BetType) bool {
	if x == y {
		return false
	}
	return x == models.BetTypeTotal || y == models.BetTypeTotal
}

// Average returns the mean pairwise coefficient across the legs, or 0 for
// fewer than two legs
func (m *Model) Average(legs []models.AccaLeg) float64 {
	if len(legs) < 2 {
		return 0
	}
	sum := 0.0
	pairs := 0
	for i := 0; i < len(legs); i++ {
		for j := i + 1; j < len(legs); j++ {
			sum += m.Coefficient(legs[i], legs[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// AdjustProbability derates the independent win probability of a set of
// legs by their average pairwise correlation. Positive correlation can only
// reduce the claimed probability, never raise it: understated EV is safe,
// overstated EV is the failure mode. Returns the adjusted probability and
// the average correlation used.
func (m *Model) AdjustProbability(independent float64, legs []models.AccaLeg) (float64, float64) {
	avg := m.Average(legs)
	if avg <= 0 || len(legs) < 2 {
		return independent, avg
	}
	factor := 1 - avg*m.cfg.PenaltyWeight
	if factor < 0 {
		factor = 0
	}
	adjusted := independent
	for i := 1; i < len(legs); i++ {
		adjusted *= factor
	}
	return adjusted, avg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
