package acca

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/correlation"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// zeroCorrelation returns a correlation model where distinct events carry
// no correlation at all
func zeroCorrelation() *correlation.Model {
	cfg := correlation.DefaultConfig()
	cfg.SameSport = 0
	cfg.CrossSport = 0
	return correlation.New(cfg)
}

func poolLeg(event string, sport models.Sport, pick string, odds, fair float64, now time.Time) models.AccaLeg {
	return models.AccaLeg{
		EventID:          event,
		Sport:            sport,
		Pick:             pick,
		BetType:          models.BetTypeMoneyline,
		DecimalOdds:      odds,
		FairProbability:  fair,
		BookmakerName:    "pinnacle",
		ProbabilitySigma: 0.01,
		QualityScore:     80,
		EventStart:       now.Add(2 * time.Hour),
		QuotedAt:         now,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxLegs = 2
	cfg.MonteCarlo.Seed = 42
	return cfg
}

func TestBuilder_TwoLegCombination(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 1)

	acca := out[0]
	assert.InDelta(t, 3.3, acca.CombinedOdds, 1e-9)
	assert.InDelta(t, 0.33, acca.IndependentProbability, 1e-9)
	assert.Equal(t, acca.IndependentProbability, acca.CorrelationAdjustedProbability)
	assert.InDelta(t, 8.9, acca.EVPercent, 0.01)
	assert.Equal(t, 0.0, acca.AvgCorrelation)
	assert.True(t, acca.CrossSport)
	assert.False(t, acca.Skeptical)
	assert.NoError(t, acca.Validate())
}

func TestBuilder_CorrelationReducesEV(t *testing.T) {
	now := time.Now()
	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now),
	}

	independentOut, err := New(testConfig(), zeroCorrelation(), nil, nil, testLogger()).
		Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, independentOut, 1)

	correlatedOut, err := New(testConfig(), correlation.New(correlation.DefaultConfig()), nil, nil, testLogger()).
		Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, correlatedOut, 1)

	assert.Greater(t, correlatedOut[0].AvgCorrelation, 0.0)
	assert.Less(t, correlatedOut[0].CorrelationAdjustedProbability, correlatedOut[0].IndependentProbability)
	assert.Less(t, correlatedOut[0].EVPercent, independentOut[0].EVPercent)
}

func TestBuilder_FiltersStartedAndStaleLegs(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	started := poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now)
	started.EventStart = now.Add(-time.Hour)

	stale := poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now)
	stale.QuotedAt = now.Add(-time.Hour)

	fresh := poolLeg("evt-3", models.SportMLB, "yankees ml", 1.90, 0.58, now)

	out, err := b.Build(context.Background(), []models.AccaLeg{started, stale, fresh}, now)
	require.NoError(t, err)
	assert.Empty(t, out, "one eligible leg cannot form an accumulator")
}

func TestBuilder_DistinctEventsOnly(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.56, now),
		poolLeg("evt-1", models.SportNBA, "over 220", 1.95, 0.56, now),
		poolLeg("evt-2", models.SportNBA, "celtics ml", 1.95, 0.56, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, acca := range out {
		assert.NoError(t, acca.Validate())
	}
}

func TestBuilder_CrossSportOnly(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.CrossSportOnly = true
	b := New(cfg, zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.56, now),
		poolLeg("evt-2", models.SportNBA, "celtics ml", 1.95, 0.56, now),
		poolLeg("evt-3", models.SportNHL, "rangers ml", 1.90, 0.58, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, acca := range out {
		seen := make(map[models.Sport]bool)
		for _, leg := range acca.Legs {
			assert.False(t, seen[leg.Sport], "cross-sport build must not repeat a sport")
			seen[leg.Sport] = true
		}
	}
}

func TestBuilder_EVFloorDropsCandidates(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 1.80, 0.50, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.80, 0.50, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuilder_SkepticismFlagsExtremeEV(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.20, 0.60, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 2.20, 0.60, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Greater(t, out[0].EVPercent, 15.0)
	assert.True(t, out[0].Skeptical)
	assert.NotEmpty(t, out[0].SkepticNote)
}

func TestBuilder_ExposureCap(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxPerLeg = 1
	b := New(cfg, zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "a", 2.00, 0.60, now),
		poolLeg("evt-2", models.SportNBA, "b", 2.00, 0.58, now),
		poolLeg("evt-3", models.SportNBA, "c", 2.00, 0.56, now),
		poolLeg("evt-4", models.SportNBA, "d", 2.00, 0.54, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 2)

	used := make(map[string]int)
	for _, acca := range out {
		for _, leg := range acca.Legs {
			used[leg.EventID+"|"+leg.Pick]++
		}
	}
	for key, count := range used {
		assert.LessOrEqual(t, count, 1, "leg %s exceeded exposure cap", key)
	}

	// top ranked pairs the two strongest legs, the next disjoint pair is
	// the remaining two
	assert.ElementsMatch(t,
		[]string{"evt-1", "evt-2"},
		[]string{out[0].Legs[0].EventID, out[0].Legs[1].EventID})
	assert.ElementsMatch(t,
		[]string{"evt-3", "evt-4"},
		[]string{out[1].Legs[0].EventID, out[1].Legs[1].EventID})
}

func TestBuilder_RankedByGradeThenEV(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "a", 2.00, 0.60, now),
		poolLeg("evt-2", models.SportNBA, "b", 2.00, 0.58, now),
		poolLeg("evt-3", models.SportNBA, "c", 2.00, 0.56, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	for i := 1; i < len(out); i++ {
		if out[i-1].Grade == out[i].Grade {
			assert.GreaterOrEqual(t, out[i-1].EVPercent, out[i].EVPercent)
		} else {
			assert.True(t, out[i-1].Grade.AtLeast(out[i].Grade))
		}
	}
}

func TestBuilder_ConfidenceIntervalBracketsEV(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 1)

	ci := out[0].EVConfidence
	assert.Less(t, ci.Low, out[0].EVPercent)
	assert.Greater(t, ci.High, out[0].EVPercent)
	assert.Greater(t, ci.Width(), 0.0)
}

func TestBuilder_HugeEVWithPoorDataNeverGradesS(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	noisy := func(event, pick string) models.AccaLeg {
		leg := poolLeg(event, models.SportNBA, pick, 2.20, 0.60, now)
		leg.QualityScore = 5
		leg.ProbabilitySigma = 0.15
		return leg
	}
	pool := []models.AccaLeg{noisy("evt-1", "a"), noisy("evt-2", "b")}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Greater(t, out[0].EVPercent, 40.0)
	assert.NotEqual(t, models.AccaGradeS, out[0].Grade)
	assert.NotEqual(t, models.AccaGradeA, out[0].Grade)
}

type halfAdjuster struct{}

func (halfAdjuster) MultiplierFor(string) float64 { return 0.5 }

func TestBuilder_AdjusterSuppressesGrade(t *testing.T) {
	now := time.Now()
	clean := func(event, pick string) models.AccaLeg {
		leg := poolLeg(event, models.SportNBA, pick, 2.00, 0.55, now)
		leg.QualityScore = 90
		leg.ProbabilitySigma = 0.005
		return leg
	}
	pool := []models.AccaLeg{clean("evt-1", "a"), clean("evt-2", "b")}

	plain, err := New(testConfig(), zeroCorrelation(), nil, nil, testLogger()).
		Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, plain, 1)

	suppressed, err := New(testConfig(), zeroCorrelation(), nil, halfAdjuster{}, testLogger()).
		Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, suppressed, 1)

	assert.True(t, plain[0].Grade.AtLeast(models.AccaGradeA))
	assert.False(t, suppressed[0].Grade.AtLeast(plain[0].Grade))
}

type fixedStaker struct {
	stake float64
}

func (f fixedStaker) StakeFor(*models.Accumulator) float64 { return f.stake }

func TestBuilder_StakerSetsKellyStake(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), fixedStaker{stake: 25}, nil, testLogger())

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now),
	}

	out, err := b.Build(context.Background(), pool, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 25.0, out[0].KellyStake)
}

func TestBuilder_CancelledContext(t *testing.T) {
	now := time.Now()
	b := New(testConfig(), zeroCorrelation(), nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := []models.AccaLeg{
		poolLeg("evt-1", models.SportNBA, "lakers ml", 2.00, 0.55, now),
		poolLeg("evt-2", models.SportNHL, "rangers ml", 1.65, 0.60, now),
	}

	_, err := b.Build(ctx, pool, now)
	assert.Error(t, err)
}
