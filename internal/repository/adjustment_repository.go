package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// PostgresAdjustmentRepository implements AdjustmentRepository for PostgreSQL
type PostgresAdjustmentRepository struct {
	db *database.DB
}

// NewPostgresAdjustmentRepository creates a new adjustment repository
func NewPostgresAdjustmentRepository(db *database.DB) AdjustmentRepository {
	return &PostgresAdjustmentRepository{db: db}
}

// Upsert writes a calibration multiplier, replacing any previous value for the category
func (r *PostgresAdjustmentRepository) Upsert(ctx context.Context, adj *models.LearningAdjustment) error {
	query := `
		INSERT INTO adjustments (category, multiplier, implied_win_rate, realized_win_rate, sample_size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category) DO UPDATE SET
			multiplier = EXCLUDED.multiplier,
			implied_win_rate = EXCLUDED.implied_win_rate,
			realized_win_rate = EXCLUDED.realized_win_rate,
			sample_size = EXCLUDED.sample_size,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		adj.Category, adj.Multiplier, adj.ImpliedWin, adj.RealizedWin, adj.SampleSize, adj.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert adjustment: %w", err)
	}

	return nil
}

// GetByCategory retrieves the multiplier for one category
func (r *PostgresAdjustmentRepository) GetByCategory(ctx context.Context, category string) (*models.LearningAdjustment, error) {
	query := `
		SELECT category, multiplier, implied_win_rate, realized_win_rate, sample_size, updated_at
		FROM adjustments WHERE category = $1
	`

	adj := &models.LearningAdjustment{}
	err := r.db.QueryRow(ctx, query, category).Scan(
		&adj.Category, &adj.Multiplier, &adj.ImpliedWin, &adj.RealizedWin, &adj.SampleSize, &adj.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}

	return adj, nil
}

// GetAll retrieves every stored calibration multiplier
func (r *PostgresAdjustmentRepository) GetAll(ctx context.Context) ([]*models.LearningAdjustment, error) {
	query := `
		SELECT category, multiplier, implied_win_rate, realized_win_rate, sample_size, updated_at
		FROM adjustments
		ORDER BY category ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*models.LearningAdjustment
	for rows.Next() {
		adj := &models.LearningAdjustment{}
		err := rows.Scan(
			&adj.Category, &adj.Multiplier, &adj.ImpliedWin, &adj.RealizedWin, &adj.SampleSize, &adj.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		adjustments = append(adjustments, adj)
	}

	return adjustments, rows.Err()
}
