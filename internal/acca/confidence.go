package acca

import (
	"math"
	"sort"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// MonteCarloConfig controls the EV confidence interval sampling
type MonteCarloConfig struct {
	// Iterations is the sample count per candidate
	Iterations int

	// Seed fixes the random stream; 0 seeds from the clock
	Seed int64

	// LowPercentile and HighPercentile bound the reported band
	LowPercentile  float64
	HighPercentile float64

	// DefaultSigma stands in for legs that carry no source-disagreement
	// spread of their own
	DefaultSigma float64
}

// DefaultMonteCarloConfig returns the standard sampling settings
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Iterations:     1000,
		LowPercentile:  0.05,
		HighPercentile: 0.95,
		DefaultSigma:   0.03,
	}
}

// evInterval propagates leg-level probability uncertainty into an EV band.
// Each iteration perturbs every leg's fair probability by a normal draw
// scaled to its source disagreement, recombines, and reprices the EV; the
// band is the configured percentile range of the resulting distribution.
// The correlation derating factor is held fixed across draws.
func (b *Builder) evInterval(legs []models.AccaLeg, combinedOdds, deratingFactor float64) models.EVInterval {
	cfg := b.cfg.MonteCarlo
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	distribution := make([]float64, iterations)
	for i := 0; i < iterations; i++ {
		adjusted := deratingFactor
		for _, leg := range legs {
			sigma := leg.ProbabilitySigma
			if sigma <= 0 {
				sigma = cfg.DefaultSigma
			}
			p := leg.FairProbability + b.rng.NormFloat64()*sigma
			if p < 0.001 {
				p = 0.001
			}
			if p > 0.999 {
				p = 0.999
			}
			adjusted *= p
		}
		distribution[i] = (combinedOdds*adjusted - 1) * 100
	}

	low := cfg.LowPercentile
	if low <= 0 {
		low = 0.05
	}
	high := cfg.HighPercentile
	if high <= 0 {
		high = 0.95
	}
	return models.EVInterval{
		Low:  percentile(distribution, low),
		High: percentile(distribution, high),
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	idx := int(math.Floor(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
