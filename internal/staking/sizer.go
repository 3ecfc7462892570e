package staking

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Config controls stake sizing
type Config struct {
	// Bankroll is the account size stakes are expressed against
	Bankroll float64

	// KellyFraction damps the raw Kelly output, 0.25 for quarter Kelly
	KellyFraction float64

	// MaxBankrollShare caps any single stake as a share of bankroll
	// regardless of the raw Kelly output
	MaxBankrollShare float64

	// MinStake suppresses dust recommendations
	MinStake float64
}

// DefaultConfig returns the standard sizing settings
func DefaultConfig() Config {
	return Config{
		Bankroll:         1000,
		KellyFraction:    0.25,
		MaxBankrollShare: 0.03,
		MinStake:         1.0,
	}
}

// FromConfig converts app config to staking config
func FromConfig(cfg config.StakingConfig) Config {
	return Config{
		Bankroll:         cfg.Bankroll,
		KellyFraction:    cfg.KellyFraction,
		MaxBankrollShare: cfg.MaxBankrollShare,
		MinStake:         cfg.MinStake,
	}
}

// Sizer converts win probability and odds into a bounded stake
// recommendation
type Sizer struct {
	cfg    Config
	mu     sync.RWMutex
	logger *logrus.Logger
}

// New creates a Sizer
func New(cfg Config, logger *logrus.Logger) *Sizer {
	if cfg.KellyFraction <= 0 {
		cfg.KellyFraction = 0.25
	}
	if cfg.MaxBankrollShare <= 0 {
		cfg.MaxBankrollShare = 0.03
	}
	return &Sizer{cfg: cfg, logger: logger}
}

// Fraction returns the capped fractional-Kelly share of bankroll for the
// given win probability and decimal odds, floored at zero.
//
// Kelly: f = (b*p - q) / b with b = odds - 1, q = 1 - p, which reduces to
// (p*odds - 1) / (odds - 1).
func (s *Sizer) Fraction(probability, odds float64) float64 {
	if odds <= 1 {
		return 0
	}
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}

	b := odds - 1.0
	kelly := (b*probability - (1 - probability)) / b
	fractional := kelly * s.cfg.KellyFraction

	if fractional <= 0 {
		s.logger.WithFields(logrus.Fields{
			"odds":        odds,
			"probability": probability,
			"kelly":       kelly,
		}).Debug("Negative Kelly fraction, no stake recommended")
		return 0
	}
	if fractional > s.cfg.MaxBankrollShare {
		s.logger.WithFields(logrus.Fields{
			"fractional_kelly": fractional,
			"cap":              s.cfg.MaxBankrollShare,
		}).Debug("Kelly fraction capped at bankroll share ceiling")
		fractional = s.cfg.MaxBankrollShare
	}
	return fractional
}

// Stake returns the recommended stake in account currency for the given win
// probability and decimal odds
func (s *Sizer) Stake(probability, odds float64) float64 {
	s.mu.RLock()
	bankroll := s.cfg.Bankroll
	s.mu.RUnlock()

	stake := bankroll * s.Fraction(probability, odds)
	if stake < s.cfg.MinStake {
		return 0
	}
	return stake
}

// StakeFor sizes an accumulator from its correlation-adjusted probability
// and combined odds
func (s *Sizer) StakeFor(acca *models.Accumulator) float64 {
	return s.Stake(acca.CorrelationAdjustedProbability, acca.CombinedOdds)
}

// SetBankroll updates the bankroll, typically after a resolution pass moves
// realized PnL
func (s *Sizer) SetBankroll(bankroll float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Bankroll = bankroll
}

// Bankroll returns the current bankroll
func (s *Sizer) Bankroll() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Bankroll
}
