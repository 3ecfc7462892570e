package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

func testPick(t *testing.T) *models.ResolvedPick {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.ResolvedPick{
		PickID:  uuid.New(),
		AccaID:  uuid.New(),
		BuildID: uuid.New(),
		Legs: []models.PickLeg{
			{
				Leg: models.AccaLeg{
					EventID:         "evt_nba_1",
					Sport:           models.SportNBA,
					Pick:            "Boston Celtics",
					BetType:         models.BetTypeMoneyline,
					DecimalOdds:     1.91,
					FairProbability: 0.55,
					EventStart:      now.Add(2 * time.Hour),
					QuotedAt:        now,
				},
				Result: models.LegResultPending,
			},
			{
				Leg: models.AccaLeg{
					EventID:         "evt_nhl_1",
					Sport:           models.SportNHL,
					Pick:            "Toronto Maple Leafs",
					BetType:         models.BetTypeMoneyline,
					DecimalOdds:     2.10,
					FairProbability: 0.50,
					EventStart:      now.Add(3 * time.Hour),
					QuotedAt:        now,
				},
				Result: models.LegResultPending,
			},
		},
		Status:              models.PickStatusPending,
		OverallResult:       models.LegResultPending,
		Stake:               25.0,
		CombinedOdds:        4.011,
		AdjustedProbability: 0.26,
		EVPercent:           4.3,
		Grade:               models.AccaGradeB,
		SavedAt:             now,
	}
}

// TestPickLifecycle exercises create, partial settlement and finalization
func TestPickLifecycle(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pick := testPick(t)
	if err := repos.Pick.Create(ctx, pick); err != nil {
		t.Fatalf("failed to create pick: %v", err)
	}

	retrieved, err := repos.Pick.GetByID(ctx, pick.PickID)
	if err != nil {
		t.Fatalf("failed to retrieve pick: %v", err)
	}
	if retrieved.PickID != pick.PickID {
		t.Errorf("expected pick ID %v, got %v", pick.PickID, retrieved.PickID)
	}
	if len(retrieved.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(retrieved.Legs))
	}
	if retrieved.Status != models.PickStatusPending {
		t.Errorf("expected pending status, got %s", retrieved.Status)
	}

	// Settle the first leg only
	settledAt := time.Now().UTC()
	retrieved.Legs[0].Result = models.LegResultWon
	retrieved.Legs[0].SettledAt = &settledAt
	retrieved.Status = models.PickStatusPartiallySettled

	if err := repos.Pick.UpdateLegs(ctx, retrieved); err != nil {
		t.Fatalf("failed to update pick legs: %v", err)
	}

	unresolved, err := repos.Pick.GetUnresolved(ctx)
	if err != nil {
		t.Fatalf("failed to query unresolved picks: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved pick, got %d", len(unresolved))
	}
	if unresolved[0].Status != models.PickStatusPartiallySettled {
		t.Errorf("expected partially_settled status, got %s", unresolved[0].Status)
	}

	// Settle the second leg and finalize
	retrieved.Legs[1].Result = models.LegResultWon
	retrieved.Legs[1].SettledAt = &settledAt
	retrieved.Status = models.PickStatusResolved
	retrieved.OverallResult = models.LegResultWon
	pnl := retrieved.Stake * (retrieved.CombinedOdds - 1)
	retrieved.PnL = &pnl
	resolvedAt := time.Now().UTC()
	retrieved.ResolvedAt = &resolvedAt

	if err := repos.Pick.Finalize(ctx, retrieved); err != nil {
		t.Fatalf("failed to finalize pick: %v", err)
	}

	final, err := repos.Pick.GetByID(ctx, pick.PickID)
	if err != nil {
		t.Fatalf("failed to retrieve finalized pick: %v", err)
	}
	if !final.IsResolved() {
		t.Error("expected pick to be resolved")
	}
	if final.OverallResult != models.LegResultWon {
		t.Errorf("expected won result, got %s", final.OverallResult)
	}
	if final.PnL == nil || *final.PnL <= 0 {
		t.Errorf("expected positive PnL, got %v", final.PnL)
	}
}

// TestPickFinalizeIdempotent verifies that settling twice is rejected
func TestPickFinalizeIdempotent(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pick := testPick(t)
	if err := repos.Pick.Create(ctx, pick); err != nil {
		t.Fatalf("failed to create pick: %v", err)
	}

	settledAt := time.Now().UTC()
	for i := range pick.Legs {
		pick.Legs[i].Result = models.LegResultLost
		pick.Legs[i].SettledAt = &settledAt
	}
	pick.Status = models.PickStatusResolved
	pick.OverallResult = models.LegResultLost
	pnl := -pick.Stake
	pick.PnL = &pnl
	pick.ResolvedAt = &settledAt

	if err := repos.Pick.Finalize(ctx, pick); err != nil {
		t.Fatalf("failed to finalize pick: %v", err)
	}

	// A second settlement attempt must not rewrite the stored PnL
	differentPnL := 999.0
	pick.PnL = &differentPnL
	err = repos.Pick.Finalize(ctx, pick)
	if err != models.ErrAlreadyResolved {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	final, err := repos.Pick.GetByID(ctx, pick.PickID)
	if err != nil {
		t.Fatalf("failed to retrieve pick: %v", err)
	}
	if final.PnL == nil || *final.PnL != -25.0 {
		t.Errorf("expected original PnL -25.0 to survive, got %v", final.PnL)
	}
}

// TestOpenExposure verifies exposure aggregation over unresolved picks
func TestOpenExposure(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := testPick(t)
	second := testPick(t)
	second.Stake = 15.0

	if err := repos.Pick.Create(ctx, first); err != nil {
		t.Fatalf("failed to create first pick: %v", err)
	}
	if err := repos.Pick.Create(ctx, second); err != nil {
		t.Fatalf("failed to create second pick: %v", err)
	}

	exposure, err := repos.Pick.OpenExposure(ctx)
	if err != nil {
		t.Fatalf("failed to compute open exposure: %v", err)
	}
	if exposure != 40.0 {
		t.Errorf("expected open exposure 40.0, got %f", exposure)
	}
}

// TestAdjustmentUpsert verifies calibration multiplier persistence
func TestAdjustmentUpsert(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adj := &models.LearningAdjustment{
		Category:    "nba:MONEYLINE",
		Multiplier:  0.92,
		ImpliedWin:  0.58,
		RealizedWin: 0.53,
		SampleSize:  31,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := repos.Adjustment.Upsert(ctx, adj); err != nil {
		t.Fatalf("failed to upsert adjustment: %v", err)
	}

	// Second upsert replaces the stored multiplier
	adj.Multiplier = 0.95
	adj.SampleSize = 40
	if err := repos.Adjustment.Upsert(ctx, adj); err != nil {
		t.Fatalf("failed to re-upsert adjustment: %v", err)
	}

	stored, err := repos.Adjustment.GetByCategory(ctx, "nba:MONEYLINE")
	if err != nil {
		t.Fatalf("failed to get adjustment: %v", err)
	}
	if stored.Multiplier != 0.95 {
		t.Errorf("expected multiplier 0.95, got %f", stored.Multiplier)
	}
	if stored.SampleSize != 40 {
		t.Errorf("expected sample size 40, got %d", stored.SampleSize)
	}

	all, err := repos.Adjustment.GetAll(ctx)
	if err != nil {
		t.Fatalf("failed to get all adjustments: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 adjustment, got %d", len(all))
	}
}

// TestBuildReportLifecycle verifies build start and completion records
func TestBuildReportLifecycle(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buildID := uuid.New()
	startedAt := time.Now().UTC()

	if err := repos.Build.RecordStart(ctx, buildID, "schedule", startedAt); err != nil {
		t.Fatalf("failed to record build start: %v", err)
	}

	report := &models.BuildReport{
		BuildID:         buildID,
		Version:         3,
		Status:          models.BuildStatusDegraded,
		StartedAt:       startedAt,
		Duration:        42 * time.Second,
		MarketsScanned:  38,
		MarketsExcluded: 4,
		EdgeCount:       6,
		AccaCount:       2,
		Degraded: []models.SourceDegradation{
			{Source: models.SourceLanguageModel, Code: "timeout", Message: "inference deadline exceeded"},
		},
	}

	if err := repos.Build.RecordCompletion(ctx, report); err != nil {
		t.Fatalf("failed to record build completion: %v", err)
	}

	recent, err := repos.Build.GetRecent(ctx, 5)
	if err != nil {
		t.Fatalf("failed to get recent builds: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent build, got %d", len(recent))
	}
	if recent[0].Status != models.BuildStatusDegraded {
		t.Errorf("expected degraded status, got %s", recent[0].Status)
	}
	if len(recent[0].Degraded) != 1 || recent[0].Degraded[0].Source != models.SourceLanguageModel {
		t.Errorf("expected languageModel degradation to round-trip, got %+v", recent[0].Degraded)
	}
	if recent[0].Duration != 42*time.Second {
		t.Errorf("expected 42s duration, got %v", recent[0].Duration)
	}
}
