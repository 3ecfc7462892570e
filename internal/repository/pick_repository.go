package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// PostgresPickRepository implements PickRepository for PostgreSQL
type PostgresPickRepository struct {
	db *database.DB
}

// NewPostgresPickRepository creates a new pick repository
func NewPostgresPickRepository(db *database.DB) PickRepository {
	return &PostgresPickRepository{db: db}
}

const pickColumns = `id, acca_id, build_id, legs, combined_odds, adjusted_probability,
	       ev_percent, stake, grade, status, result, pnl, proposed_at, resolved_at`

// Create inserts a new pick in pending state
func (r *PostgresPickRepository) Create(ctx context.Context, pick *models.ResolvedPick) error {
	legs, err := json.Marshal(pick.Legs)
	if err != nil {
		return fmt.Errorf("failed to marshal pick legs: %w", err)
	}

	query := `
		INSERT INTO picks (id, acca_id, build_id, legs, combined_odds, adjusted_probability,
		                   ev_percent, stake, grade, status, proposed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.Exec(ctx, query,
		pick.PickID, pick.AccaID, pick.BuildID, legs, pick.CombinedOdds, pick.AdjustedProbability,
		pick.EVPercent, pick.Stake, pick.Grade, pick.Status, pick.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pick: %w", err)
	}

	return nil
}

// GetByID retrieves a pick by ID
func (r *PostgresPickRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResolvedPick, error) {
	query := `SELECT ` + pickColumns + ` FROM picks WHERE id = $1`

	pick, err := scanPick(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pick: %w", err)
	}

	return pick, nil
}

// GetUnresolved retrieves all picks still awaiting final settlement
func (r *PostgresPickRepository) GetUnresolved(ctx context.Context) ([]*models.ResolvedPick, error) {
	query := `SELECT ` + pickColumns + `
		FROM picks
		WHERE status != 'resolved'
		ORDER BY proposed_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved picks: %w", err)
	}
	defer rows.Close()

	var picks []*models.ResolvedPick
	for rows.Next() {
		pick, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		picks = append(picks, pick)
	}

	return picks, rows.Err()
}

// UpdateLegs persists per-leg results and the partial settlement status.
// Picks that already reached their terminal state are left untouched.
func (r *PostgresPickRepository) UpdateLegs(ctx context.Context, pick *models.ResolvedPick) error {
	legs, err := json.Marshal(pick.Legs)
	if err != nil {
		return fmt.Errorf("failed to marshal pick legs: %w", err)
	}

	query := `
		UPDATE picks SET legs = $2, status = $3
		WHERE id = $1 AND resolved_at IS NULL
	`

	commandTag, err := r.db.Exec(ctx, query, pick.PickID, legs, pick.Status)
	if err != nil {
		return fmt.Errorf("failed to update pick legs: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrAlreadyResolved
	}

	return nil
}

// Finalize marks a pick resolved with its final result and profit or loss.
// The resolved_at guard makes the transition idempotent: settling twice is
// rejected rather than recomputed.
func (r *PostgresPickRepository) Finalize(ctx context.Context, pick *models.ResolvedPick) error {
	legs, err := json.Marshal(pick.Legs)
	if err != nil {
		return fmt.Errorf("failed to marshal pick legs: %w", err)
	}

	query := `
		UPDATE picks SET legs = $2, status = 'resolved', result = $3, pnl = $4, resolved_at = $5
		WHERE id = $1 AND resolved_at IS NULL
	`

	commandTag, err := r.db.Exec(ctx, query,
		pick.PickID, legs, pick.OverallResult, pick.PnL, pick.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize pick: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrAlreadyResolved
	}

	return nil
}

// GetResolved retrieves all resolved picks within a date range
func (r *PostgresPickRepository) GetResolved(ctx context.Context, start, end time.Time) ([]*models.ResolvedPick, error) {
	query := `SELECT ` + pickColumns + `
		FROM picks
		WHERE status = 'resolved' AND resolved_at >= $1 AND resolved_at <= $2
		ORDER BY resolved_at DESC
	`

	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved picks: %w", err)
	}
	defer rows.Close()

	var picks []*models.ResolvedPick
	for rows.Next() {
		pick, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		picks = append(picks, pick)
	}

	return picks, rows.Err()
}

// OpenExposure returns the total stake across unresolved picks
func (r *PostgresPickRepository) OpenExposure(ctx context.Context) (float64, error) {
	query := `SELECT COALESCE(SUM(stake), 0) FROM picks WHERE status != 'resolved'`

	var exposure float64
	if err := r.db.QueryRow(ctx, query).Scan(&exposure); err != nil {
		return 0, fmt.Errorf("failed to compute open exposure: %w", err)
	}

	return exposure, nil
}

// scanPick reads one pick row, decoding the legs JSONB column
func scanPick(row pgx.Row) (*models.ResolvedPick, error) {
	pick := &models.ResolvedPick{}
	var legs []byte
	var result *string

	err := row.Scan(
		&pick.PickID, &pick.AccaID, &pick.BuildID, &legs, &pick.CombinedOdds, &pick.AdjustedProbability,
		&pick.EVPercent, &pick.Stake, &pick.Grade, &pick.Status, &result, &pick.PnL,
		&pick.SavedAt, &pick.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(legs, &pick.Legs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pick legs: %w", err)
	}
	if result != nil {
		pick.OverallResult = models.LegResult(*result)
	} else {
		pick.OverallResult = models.LegResultPending
	}

	return pick, nil
}
