// Package logger provides build-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// BuildLogger provides dedicated logging for engine build passes.
type BuildLogger struct {
	*logrus.Entry
}

// NewBuildLogger creates a new build logger.
func NewBuildLogger(baseLogger *logrus.Logger) *BuildLogger {
	return &BuildLogger{
		Entry: baseLogger.WithField("component", "build"),
	}
}

// LogBuildStart logs the start of a build pass.
func (bl *BuildLogger) LogBuildStart(buildID string, version int64, trigger string) {
	bl.WithFields(logrus.Fields{
		"build_id": buildID,
		"version":  version,
		"trigger":  trigger,
	}).Info("Build started")
}

// LogBuildAbandoned logs a build that failed outright. The previous
// snapshot stays authoritative.
func (bl *BuildLogger) LogBuildAbandoned(buildID string, version int64, duration time.Duration, reason string) {
	bl.WithFields(logrus.Fields{
		"build_id": buildID,
		"version":  version,
		"duration": duration,
		"error":    reason,
	}).Error("Build abandoned, previous snapshot stays authoritative")
}

// LogBuildCompleted logs a completed build pass.
func (bl *BuildLogger) LogBuildCompleted(report *models.BuildReport) {
	bl.WithFields(logrus.Fields{
		"build_id":     report.BuildID,
		"version":      report.Version,
		"status":       report.Status,
		"scanned":      report.MarketsScanned,
		"excluded":     report.MarketsExcluded,
		"edges":        report.EdgeCount,
		"accumulators": report.AccaCount,
		"degraded":     len(report.Degraded),
		"duration":     report.Duration,
	}).Info("Build completed")
}

// LogMarketAnalysis logs a single market analysis result.
func (bl *BuildLogger) LogMarketAnalysis(marketID string, estimates, degraded int, divergence float64) {
	bl.WithFields(logrus.Fields{
		"market_id":  marketID,
		"estimates":  estimates,
		"degraded":   degraded,
		"divergence": divergence,
	}).Debug("Market analyzed")
}

// LogSourceError logs a source adapter failure during estimate collection.
func (bl *BuildLogger) LogSourceError(source, marketID, code, message string) {
	bl.WithFields(logrus.Fields{
		"source":    source,
		"market_id": marketID,
		"code":      code,
		"error":     message,
	}).Warn("Source estimates failed")
}

// LogSnapshotPublished logs snapshot publication.
func (bl *BuildLogger) LogSnapshotPublished(version int64, status string, edges, accas int) {
	bl.WithFields(logrus.Fields{
		"version":      version,
		"status":       status,
		"edges":        edges,
		"accumulators": accas,
	}).Info("Snapshot published")
}
