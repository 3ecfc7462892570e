package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// PickRepository defines the interface for pick data access
type PickRepository interface {
	Create(ctx context.Context, pick *models.ResolvedPick) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ResolvedPick, error)
	GetUnresolved(ctx context.Context) ([]*models.ResolvedPick, error)
	UpdateLegs(ctx context.Context, pick *models.ResolvedPick) error
	Finalize(ctx context.Context, pick *models.ResolvedPick) error
	GetResolved(ctx context.Context, start, end time.Time) ([]*models.ResolvedPick, error)
	OpenExposure(ctx context.Context) (float64, error)
}

// AdjustmentRepository defines the interface for calibration multiplier data access
type AdjustmentRepository interface {
	Upsert(ctx context.Context, adj *models.LearningAdjustment) error
	GetByCategory(ctx context.Context, category string) (*models.LearningAdjustment, error)
	GetAll(ctx context.Context) ([]*models.LearningAdjustment, error)
}

// BuildRepository defines the interface for build report data access
type BuildRepository interface {
	RecordStart(ctx context.Context, buildID uuid.UUID, trigger string, startedAt time.Time) error
	RecordCompletion(ctx context.Context, report *models.BuildReport) error
	RecordFailure(ctx context.Context, buildID uuid.UUID, reason string) error
	GetRecent(ctx context.Context, limit int) ([]*models.BuildReport, error)
}
