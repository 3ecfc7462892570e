package devig

import (
	"fmt"
	"math"
	"sort"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Multiplicative removes vig by proportional normalization: each implied
// probability is divided by the booksum so the fair set sums to 1.
//
// Example: decimal odds 1.91 and 2.05 imply 0.5236 and 0.4878 (booksum
// 1.0114, vig 1.14%); fair probabilities are 0.5177 and 0.4823.
func Multiplicative(implied []float64) ([]float64, error) {
	if len(implied) < 2 {
		return nil, fmt.Errorf("multiplicative devig needs at least 2 outcomes, got %d", len(implied))
	}
	total := 0.0
	for _, p := range implied {
		if p <= 0 || p >= 1 {
			return nil, fmt.Errorf("implied probability %.4f out of range (0,1)", p)
		}
		total += p
	}
	if total < 1.0 {
		return nil, fmt.Errorf("booksum %.4f below 1.0, quotes are not a full market", total)
	}
	fair := make([]float64, len(implied))
	for i, p := range implied {
		fair[i] = p / total
	}
	return fair, nil
}

// Shin removes vig under Shin's insider-trading model, which attributes a
// fraction z of volume to bettors who know the outcome. Unlike proportional
// normalization it corrects the favorite-longshot bias: longshots carry
// proportionally more vig.
//
// Fair probabilities given z:
//
//	p_i = (sqrt(z^2 + 4(1-z) * pi_i^2/B) - z) / (2(1-z))
//
// where pi_i are the implied probabilities and B their booksum. The sum of
// p_i decreases in z, from sqrt(B) at z=0, so z is solved by bisection on
// the normalization constraint sum(p_i) = 1.
//
// Returns the fair probabilities and the solved z. Fails with
// ErrDevigNonConvergent when the iteration bound is exhausted before the
// constraint is met; callers fall back to Multiplicative.
func Shin(implied []float64, maxIterations int, tolerance float64) ([]float64, float64, error) {
	n := len(implied)
	if n < 3 {
		return nil, 0, fmt.Errorf("shin devig needs at least 3 outcomes, got %d", n)
	}
	booksum := 0.0
	for _, p := range implied {
		if p <= 0 || p >= 1 {
			return nil, 0, fmt.Errorf("implied probability %.4f out of range (0,1)", p)
		}
		booksum += p
	}
	if booksum < 1.0 {
		return nil, 0, fmt.Errorf("booksum %.4f below 1.0, quotes are not a full market", booksum)
	}

	shinProbs := func(z float64) []float64 {
		probs := make([]float64, n)
		for i, p := range implied {
			probs[i] = (math.Sqrt(z*z+4*(1-z)*(p*p)/booksum) - z) / (2 * (1 - z))
		}
		return probs
	}
	sumAt := func(z float64) float64 {
		total := 0.0
		for _, p := range shinProbs(z) {
			total += p
		}
		return total
	}

	lo, hi := 0.0, 0.999
	z := 0.0
	converged := false
	for iter := 0; iter < maxIterations; iter++ {
		z = (lo + hi) / 2
		excess := sumAt(z) - 1
		if math.Abs(excess) < tolerance {
			converged = true
			break
		}
		if excess > 0 {
			lo = z
		} else {
			hi = z
		}
	}
	if !converged {
		return nil, 0, fmt.Errorf("shin solver exhausted %d iterations: %w", maxIterations, models.ErrDevigNonConvergent)
	}

	fair := shinProbs(z)
	sum := 0.0
	for _, p := range fair {
		sum += p
	}
	// normalize away the solver residual so the set sums to exactly 1
	for i := range fair {
		fair[i] /= sum
	}
	return fair, z, nil
}

// Overround returns the bookmaker margin embedded in a set of implied
// probabilities, e.g. 0.051 for a booksum of 1.051
func Overround(implied []float64) float64 {
	total := 0.0
	for _, p := range implied {
		total += p
	}
	if total < 1.0 {
		return 0
	}
	return total - 1.0
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
