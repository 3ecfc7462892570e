package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// MockPickRepository is a mock implementation of repository.PickRepository
type MockPickRepository struct {
	mock.Mock
}

func (m *MockPickRepository) Create(ctx context.Context, pick *models.ResolvedPick) error {
	args := m.Called(ctx, pick)
	return args.Error(0)
}

func (m *MockPickRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResolvedPick, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResolvedPick), args.Error(1)
}

func (m *MockPickRepository) GetUnresolved(ctx context.Context) ([]*models.ResolvedPick, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ResolvedPick), args.Error(1)
}

func (m *MockPickRepository) UpdateLegs(ctx context.Context, pick *models.ResolvedPick) error {
	args := m.Called(ctx, pick)
	return args.Error(0)
}

func (m *MockPickRepository) Finalize(ctx context.Context, pick *models.ResolvedPick) error {
	args := m.Called(ctx, pick)
	return args.Error(0)
}

func (m *MockPickRepository) GetResolved(ctx context.Context, start, end time.Time) ([]*models.ResolvedPick, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ResolvedPick), args.Error(1)
}

func (m *MockPickRepository) OpenExposure(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// stubFeed is a canned ResultFeed
type stubFeed struct {
	results map[string]*models.EventResult
	err     error
	calls   int
}

func (f *stubFeed) Results(ctx context.Context, sports []models.Sport, eventIDs []string) (map[string]*models.EventResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// twoLegPick builds a pending two-leg pick: an NBA moneyline at 2.0 and a
// totals leg at 1.8, staked at 25
func twoLegPick() *models.ResolvedPick {
	return &models.ResolvedPick{
		PickID:  uuid.New(),
		AccaID:  uuid.New(),
		BuildID: uuid.New(),
		Legs: []models.PickLeg{
			{
				Leg: models.AccaLeg{
					EventID:     "evt-a",
					Sport:       models.SportNBA,
					Pick:        "Boston Celtics",
					BetType:     models.BetTypeMoneyline,
					DecimalOdds: 2.0,
				},
				Result: models.LegResultPending,
			},
			{
				Leg: models.AccaLeg{
					EventID:     "evt-b",
					Sport:       models.SportNBA,
					Pick:        "Over 210.5",
					BetType:     models.BetTypeTotal,
					DecimalOdds: 1.8,
				},
				Result: models.LegResultPending,
			},
		},
		Status:       models.PickStatusPending,
		Stake:        25,
		CombinedOdds: 3.6,
		Grade:        models.AccaGradeB,
		SavedAt:      time.Now().Add(-24 * time.Hour),
	}
}

func completedResult(eventID, home, away string, homeScore, awayScore float64) *models.EventResult {
	return &models.EventResult{
		EventID:   eventID,
		Sport:     models.SportNBA,
		Completed: true,
		HomeTeam:  home,
		AwayTeam:  away,
		HomeScore: homeScore,
		AwayScore: awayScore,
		SettledAt: time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC),
	}
}

func TestResolverFullSettlement(t *testing.T) {
	pick := twoLegPick()
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{pick}, nil)
	repo.On("Finalize", mock.Anything, pick).Return(nil)

	feed := &stubFeed{results: map[string]*models.EventResult{
		"evt-a": completedResult("evt-a", "Boston Celtics", "Miami Heat", 112, 104),
		"evt-b": completedResult("evt-b", "Denver Nuggets", "Phoenix Suns", 118, 109),
	}}

	now := time.Now()
	report, err := New(repo, feed, testLogger()).Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 2, report.LegsSettled)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 0, report.PartiallySettled)
	assert.Equal(t, 0, report.Errors)

	assert.Equal(t, models.PickStatusResolved, pick.Status)
	assert.Equal(t, models.LegResultWon, pick.OverallResult)
	require.NotNil(t, pick.PnL)
	assert.InDelta(t, 25*(2.0*1.8-1), *pick.PnL, 1e-9)
	require.NotNil(t, pick.ResolvedAt)
	assert.Equal(t, now, *pick.ResolvedAt)
	for _, leg := range pick.Legs {
		assert.Equal(t, models.LegResultWon, leg.Result)
		require.NotNil(t, leg.SettledAt)
	}

	repo.AssertExpectations(t)
}

func TestResolverPartialSettlement(t *testing.T) {
	pick := twoLegPick()
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{pick}, nil)
	repo.On("UpdateLegs", mock.Anything, pick).Return(nil)

	// Only the first event has finished
	feed := &stubFeed{results: map[string]*models.EventResult{
		"evt-a": completedResult("evt-a", "Boston Celtics", "Miami Heat", 112, 104),
	}}

	report, err := New(repo, feed, testLogger()).Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.LegsSettled)
	assert.Equal(t, 1, report.PartiallySettled)
	assert.Equal(t, 0, report.Resolved)

	assert.Equal(t, models.PickStatusPartiallySettled, pick.Status)
	assert.Equal(t, models.LegResultWon, pick.Legs[0].Result)
	assert.Equal(t, models.LegResultPending, pick.Legs[1].Result)
	assert.Nil(t, pick.PnL)
	assert.Nil(t, pick.ResolvedAt)

	repo.AssertExpectations(t)
}

func TestResolverLostLegLosesStake(t *testing.T) {
	pick := twoLegPick()
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{pick}, nil)
	repo.On("Finalize", mock.Anything, pick).Return(nil)

	// Celtics win but the total lands under the line
	feed := &stubFeed{results: map[string]*models.EventResult{
		"evt-a": completedResult("evt-a", "Boston Celtics", "Miami Heat", 112, 104),
		"evt-b": completedResult("evt-b", "Denver Nuggets", "Phoenix Suns", 101, 98),
	}}

	report, err := New(repo, feed, testLogger()).Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, models.LegResultLost, pick.OverallResult)
	require.NotNil(t, pick.PnL)
	assert.Equal(t, -25.0, *pick.PnL)

	repo.AssertExpectations(t)
}

func TestResolverAlreadyResolvedIsNoOp(t *testing.T) {
	pick := twoLegPick()
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{pick}, nil)
	repo.On("Finalize", mock.Anything, pick).Return(models.ErrAlreadyResolved)

	feed := &stubFeed{results: map[string]*models.EventResult{
		"evt-a": completedResult("evt-a", "Boston Celtics", "Miami Heat", 112, 104),
		"evt-b": completedResult("evt-b", "Denver Nuggets", "Phoenix Suns", 118, 109),
	}}

	report, err := New(repo, feed, testLogger()).Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Resolved)
	assert.Equal(t, 0, report.Errors)

	repo.AssertExpectations(t)
}

func TestResolverFeedErrorAbortsPass(t *testing.T) {
	pick := twoLegPick()
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{pick}, nil)

	feed := &stubFeed{err: errors.New("scores endpoint down")}

	_, err := New(repo, feed, testLogger()).Run(context.Background(), time.Now())
	require.Error(t, err)

	// No settlement was attempted
	assert.Equal(t, models.PickStatusPending, pick.Status)
	repo.AssertExpectations(t)
}

func TestResolverNothingPending(t *testing.T) {
	repo := new(MockPickRepository)
	repo.On("GetUnresolved", mock.Anything).Return([]*models.ResolvedPick{}, nil)

	feed := &stubFeed{}
	report, err := New(repo, feed, testLogger()).Run(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Checked)
	assert.Equal(t, 0, feed.calls)
	repo.AssertExpectations(t)
}

func TestSettlePick(t *testing.T) {
	leg := func(result models.LegResult, odds float64) models.PickLeg {
		return models.PickLeg{
			Leg:    models.AccaLeg{DecimalOdds: odds},
			Result: result,
		}
	}

	tests := []struct {
		name       string
		legs       []models.PickLeg
		wantResult models.LegResult
		wantPnL    float64
	}{
		{
			name:       "all won",
			legs:       []models.PickLeg{leg(models.LegResultWon, 2.0), leg(models.LegResultWon, 1.8)},
			wantResult: models.LegResultWon,
			wantPnL:    25 * (2.0*1.8 - 1),
		},
		{
			name:       "push leg drops out of the multiple",
			legs:       []models.PickLeg{leg(models.LegResultWon, 2.0), leg(models.LegResultPush, 1.8)},
			wantResult: models.LegResultWon,
			wantPnL:    25 * (2.0 - 1),
		},
		{
			name:       "any lost leg loses the stake",
			legs:       []models.PickLeg{leg(models.LegResultWon, 2.0), leg(models.LegResultLost, 1.8)},
			wantResult: models.LegResultLost,
			wantPnL:    -25,
		},
		{
			name:       "all pushed returns the stake",
			legs:       []models.PickLeg{leg(models.LegResultPush, 2.0), leg(models.LegResultPush, 1.8)},
			wantResult: models.LegResultPush,
			wantPnL:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pick := &models.ResolvedPick{Stake: 25, Legs: tt.legs}
			result, pnl := settlePick(pick)
			assert.Equal(t, tt.wantResult, result)
			assert.InDelta(t, tt.wantPnL, pnl, 1e-9)
		})
	}
}
