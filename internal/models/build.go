package models

import (
	"time"

	"github.com/google/uuid"
)

// BuildStatus flags the overall condition of a completed build
type BuildStatus string

const (
	BuildStatusOK        BuildStatus = "ok"
	BuildStatusDegraded  BuildStatus = "degraded"
	BuildStatusEmpty     BuildStatus = "empty"
	BuildStatusAbandoned BuildStatus = "abandoned"
)

// SourceDegradation records one source's failure during a build. Degraded
// sources lose their contribution for that build; they never fail it.
type SourceDegradation struct {
	Source     SourceKey  `json:"source"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// BuildReport is the audit record of one engine build
type BuildReport struct {
	BuildID         uuid.UUID           `db:"build_id" json:"build_id"`
	Version         int64               `db:"version" json:"version"`
	Status          BuildStatus         `db:"status" json:"status"`
	StartedAt       time.Time           `db:"started_at" json:"started_at"`
	Duration        time.Duration       `db:"duration" json:"duration"`
	MarketsScanned  int                 `db:"markets_scanned" json:"markets_scanned"`
	MarketsExcluded int                 `db:"markets_excluded" json:"markets_excluded"`
	EdgeCount       int                 `db:"edge_count" json:"edge_count"`
	AccaCount       int                 `db:"acca_count" json:"acca_count"`
	Degraded        []SourceDegradation `db:"degraded" json:"degraded,omitempty"`
}
