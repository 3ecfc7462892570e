package devig

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestMultiplicative(t *testing.T) {
	tests := []struct {
		name        string
		implied     []float64
		expected    []float64
		expectError bool
	}{
		{
			name:     "two way market 1.91 and 2.05",
			implied:  []float64{1 / 1.91, 1 / 2.05},
			expected: []float64{0.51768, 0.48232},
		},
		{
			name:     "symmetric minus 110 both sides",
			implied:  []float64{0.5238, 0.5238},
			expected: []float64{0.5, 0.5},
		},
		{
			name:     "three way market",
			implied:  []float64{0.40, 0.3125, 0.3448},
			expected: []float64{0.37832, 0.29556, 0.32611},
		},
		{
			name:        "booksum below one",
			implied:     []float64{0.40, 0.40},
			expectError: true,
		},
		{
			name:        "single outcome",
			implied:     []float64{0.90},
			expectError: true,
		},
		{
			name:        "probability out of range",
			implied:     []float64{1.2, 0.5},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fair, err := Multiplicative(tt.implied)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			sum := 0.0
			for i, p := range fair {
				assert.InDelta(t, tt.expected[i], p, 0.0001)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestShin(t *testing.T) {
	tests := []struct {
		name    string
		odds    []float64
		booksum float64
	}{
		{name: "soccer 1X2 moderate vig", odds: []float64{2.50, 3.20, 2.90}},
		{name: "soccer 1X2 heavy favorite", odds: []float64{1.30, 5.50, 9.00}},
		{name: "four outcome market", odds: []float64{2.10, 3.80, 4.50, 8.00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			implied := make([]float64, len(tt.odds))
			for i, o := range tt.odds {
				implied[i] = 1 / o
			}

			fair, z, err := Shin(implied, 100, 1e-10)
			require.NoError(t, err)

			sum := 0.0
			for _, p := range fair {
				assert.Greater(t, p, 0.0)
				assert.Less(t, p, 1.0)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
			assert.GreaterOrEqual(t, z, 0.0)
			assert.Less(t, z, 1.0)

			// Shin corrects the favorite-longshot bias: relative to
			// proportional normalization the favorite keeps more
			// probability and the longshot less.
			mult, err := Multiplicative(implied)
			require.NoError(t, err)
			favorite, longshot := 0, 0
			for i := range implied {
				if implied[i] > implied[favorite] {
					favorite = i
				}
				if implied[i] < implied[longshot] {
					longshot = i
				}
			}
			assert.GreaterOrEqual(t, fair[favorite], mult[favorite]-1e-12)
			assert.LessOrEqual(t, fair[longshot], mult[longshot]+1e-12)
		})
	}
}

func TestShin_RequiresThreeOutcomes(t *testing.T) {
	_, _, err := Shin([]float64{0.55, 0.55}, 100, 1e-10)
	assert.Error(t, err)
}

func TestShin_IterationBound(t *testing.T) {
	implied := []float64{0.40, 0.3125, 0.3448}
	_, _, err := Shin(implied, 1, 1e-12)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDevigNonConvergent))
}

func quote(event, outcome, book string, odds float64, rank int, at time.Time) models.BookQuote {
	return models.BookQuote{
		EventID:       event,
		OutcomeLabel:  outcome,
		BookmakerName: book,
		DecimalOdds:   odds,
		SharpnessRank: rank,
		ObservedAt:    at,
	}
}

func TestDevigger_Devig(t *testing.T) {
	now := time.Now()
	d := New(DefaultConfig(), testLogger())

	quotes := []models.BookQuote{
		quote("evt-1", "home", "pinnacle", 1.91, 5, now),
		quote("evt-1", "away", "pinnacle", 2.05, 5, now),
		quote("evt-1", "home", "bet365", 1.87, 3, now),
		quote("evt-1", "away", "bet365", 2.03, 3, now),
		quote("evt-1", "home", "draftkings", 1.89, 1, now),
		quote("evt-1", "away", "draftkings", 2.00, 1, now),
	}

	result, err := d.Devig(quotes)
	require.NoError(t, err)
	require.Len(t, result.Prices, 2)

	assert.Equal(t, 3, result.BookCount)
	assert.Equal(t, models.DevigMultiplicative, result.Method)
	assert.False(t, result.Fallback)
	assert.Greater(t, result.AvgVig, 0.0)

	sum := 0.0
	for _, fp := range result.Prices {
		assert.Equal(t, "evt-1", fp.EventID)
		assert.Equal(t, "pinnacle", fp.BookmakerName)
		assert.Equal(t, 5, fp.SharpnessRank)
		sum += fp.FairProbability
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	assert.Equal(t, "home", result.Prices[0].OutcomeLabel)
	assert.InDelta(t, 0.51768, result.Prices[0].FairProbability, 0.0001)
	assert.InDelta(t, 1.91, result.Prices[0].DecimalOdds, 1e-9)
}

func TestDevigger_InsufficientBooks(t *testing.T) {
	now := time.Now()
	d := New(DefaultConfig(), testLogger())

	quotes := []models.BookQuote{
		quote("evt-2", "home", "pinnacle", 1.91, 5, now),
		quote("evt-2", "away", "pinnacle", 2.05, 5, now),
		quote("evt-2", "home", "bet365", 1.87, 3, now),
		quote("evt-2", "away", "bet365", 2.03, 3, now),
	}

	_, err := d.Devig(quotes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestDevigger_IncompleteBookDoesNotQualify(t *testing.T) {
	now := time.Now()
	d := New(DefaultConfig(), testLogger())

	// caesars quotes only one side, so only two books qualify
	quotes := []models.BookQuote{
		quote("evt-3", "home", "pinnacle", 1.91, 5, now),
		quote("evt-3", "away", "pinnacle", 2.05, 5, now),
		quote("evt-3", "home", "bet365", 1.87, 3, now),
		quote("evt-3", "away", "bet365", 2.03, 3, now),
		quote("evt-3", "home", "caesars", 1.90, 2, now),
	}

	_, err := d.Devig(quotes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestDevigger_OutlierPrimaryUsesMedian(t *testing.T) {
	now := time.Now()
	d := New(DefaultConfig(), testLogger())

	// Sharpest book prices home at a fair 0.75 while the other four sit
	// near 0.52. All books carry 2% vig so odds = 1/(fair*1.02).
	mk := func(book string, rank int, home, away float64) []models.BookQuote {
		return []models.BookQuote{
			quote("evt-4", "home", book, 1/(home*1.02), rank, now),
			quote("evt-4", "away", book, 1/(away*1.02), rank, now),
		}
	}
	var quotes []models.BookQuote
	quotes = append(quotes, mk("pinnacle", 5, 0.75, 0.25)...)
	quotes = append(quotes, mk("bet365", 3, 0.52, 0.48)...)
	quotes = append(quotes, mk("caesars", 2, 0.525, 0.475)...)
	quotes = append(quotes, mk("mgm", 2, 0.515, 0.485)...)
	quotes = append(quotes, mk("draftkings", 1, 0.52, 0.48)...)

	result, err := d.Devig(quotes)
	require.NoError(t, err)
	require.Len(t, result.Prices, 2)

	assert.Equal(t, models.DevigMedian, result.Method)
	assert.Equal(t, "consensus", result.Prices[0].BookmakerName)
	assert.InDelta(t, 0.52, result.Prices[0].FairProbability, 0.001)
	assert.InDelta(t, 0.48, result.Prices[1].FairProbability, 0.001)

	sum := result.Prices[0].FairProbability + result.Prices[1].FairProbability
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestDevigger_ShinFallbackToMultiplicative(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	cfg.ShinMaxIterations = 1
	cfg.ShinTolerance = 1e-12
	d := New(cfg, testLogger())

	mk := func(book string, rank int, o1, o2, o3 float64) []models.BookQuote {
		return []models.BookQuote{
			quote("evt-5", "1", book, o1, rank, now),
			quote("evt-5", "X", book, o2, rank, now),
			quote("evt-5", "2", book, o3, rank, now),
		}
	}
	var quotes []models.BookQuote
	quotes = append(quotes, mk("pinnacle", 5, 2.50, 3.20, 2.90)...)
	quotes = append(quotes, mk("bet365", 3, 2.45, 3.25, 2.95)...)
	quotes = append(quotes, mk("draftkings", 1, 2.55, 3.15, 2.85)...)

	result, err := d.Devig(quotes)
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, models.DevigMultiplicative, result.Method)

	sum := 0.0
	for _, fp := range result.Prices {
		sum += fp.FairProbability
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestFreshQuotes(t *testing.T) {
	now := time.Now()
	quotes := []models.BookQuote{
		quote("evt-6", "home", "pinnacle", 1.91, 5, now.Add(-2*time.Minute)),
		quote("evt-6", "away", "pinnacle", 2.05, 5, now.Add(-20*time.Minute)),
	}

	fresh := FreshQuotes(quotes, now, 10*time.Minute)
	require.Len(t, fresh, 1)
	assert.Equal(t, "home", fresh[0].OutcomeLabel)
}
