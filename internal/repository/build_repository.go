package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// PostgresBuildRepository implements BuildRepository for PostgreSQL
type PostgresBuildRepository struct {
	db *database.DB
}

// NewPostgresBuildRepository creates a new build repository
func NewPostgresBuildRepository(db *database.DB) BuildRepository {
	return &PostgresBuildRepository{db: db}
}

// RecordStart inserts a running build row
func (r *PostgresBuildRepository) RecordStart(ctx context.Context, buildID uuid.UUID, trigger string, startedAt time.Time) error {
	query := `
		INSERT INTO builds (id, triggered_by, status, started_at)
		VALUES ($1, $2, 'running', $3)
	`

	_, err := r.db.Exec(ctx, query, buildID, trigger, startedAt)
	if err != nil {
		return fmt.Errorf("failed to record build start: %w", err)
	}

	return nil
}

// RecordCompletion updates the build row with its final report
func (r *PostgresBuildRepository) RecordCompletion(ctx context.Context, report *models.BuildReport) error {
	degraded, err := json.Marshal(report.Degraded)
	if err != nil {
		return fmt.Errorf("failed to marshal degraded sources: %w", err)
	}

	query := `
		UPDATE builds SET
			version = $2, status = $3, markets_scanned = $4, markets_excluded = $5,
			edges_found = $6, accas_built = $7, degraded_sources = $8,
			duration_ms = $9, completed_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.db.Exec(ctx, query,
		report.BuildID, report.Version, report.Status, report.MarketsScanned, report.MarketsExcluded,
		report.EdgeCount, report.AccaCount, degraded, report.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record build completion: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RecordFailure marks the build row failed with its reason
func (r *PostgresBuildRepository) RecordFailure(ctx context.Context, buildID uuid.UUID, reason string) error {
	query := `
		UPDATE builds SET status = 'failed', error = $2, completed_at = NOW()
		WHERE id = $1
	`

	commandTag, err := r.db.Exec(ctx, query, buildID, reason)
	if err != nil {
		return fmt.Errorf("failed to record build failure: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetRecent retrieves the most recent completed build reports
func (r *PostgresBuildRepository) GetRecent(ctx context.Context, limit int) ([]*models.BuildReport, error) {
	query := `
		SELECT id, version, status, markets_scanned, markets_excluded,
		       edges_found, accas_built, degraded_sources, started_at, duration_ms
		FROM builds
		WHERE completed_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent builds: %w", err)
	}
	defer rows.Close()

	var reports []*models.BuildReport
	for rows.Next() {
		report := &models.BuildReport{}
		var degraded []byte
		var durationMs int64

		err := rows.Scan(
			&report.BuildID, &report.Version, &report.Status, &report.MarketsScanned, &report.MarketsExcluded,
			&report.EdgeCount, &report.AccaCount, &degraded, &report.StartedAt, &durationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build report: %w", err)
		}

		report.Duration = time.Duration(durationMs) * time.Millisecond
		if len(degraded) > 0 {
			if err := json.Unmarshal(degraded, &report.Degraded); err != nil {
				return nil, fmt.Errorf("failed to unmarshal degraded sources: %w", err)
			}
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}
