// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger records the pick lifecycle and source safety events on a
// dedicated component field so the audit trail can be filtered out of the
// general log stream.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogPickProposal logs a proposed accumulator pick.
func (al *AuditLogger) LogPickProposal(pickID, buildID string, legs int, combinedOdds, adjustedProb, evPercent, stake float64, grade string) {
	al.WithFields(logrus.Fields{
		"pick_id":       pickID,
		"build_id":      buildID,
		"legs":          legs,
		"combined_odds": combinedOdds,
		"adjusted_prob": adjustedProb,
		"ev_percent":    evPercent,
		"stake":         stake,
		"grade":         grade,
	}).Info("Paper pick proposed")
}

// LogPickStateChange logs a pick settlement state change.
func (al *AuditLogger) LogPickStateChange(pickID string, oldState, newState string, legsSettled, legsTotal int) {
	al.WithFields(logrus.Fields{
		"pick_id":      pickID,
		"old_state":    oldState,
		"new_state":    newState,
		"legs_settled": legsSettled,
		"legs_total":   legsTotal,
	}).Info("Pick state changed")
}

// LogPickResolution logs a final pick settlement with its profit or loss.
func (al *AuditLogger) LogPickResolution(pickID, result string, stake, pnl float64, resolvedAt time.Time) {
	al.WithFields(logrus.Fields{
		"pick_id":     pickID,
		"result":      result,
		"stake":       stake,
		"pnl":         pnl,
		"resolved_at": resolvedAt.Format(time.RFC3339),
	}).Info("Pick resolved")
}

// LogSourceCircuitBreaker logs a source circuit breaker opening.
func (al *AuditLogger) LogSourceCircuitBreaker(source string, consecutiveFailures int, lastError string) {
	al.WithFields(logrus.Fields{
		"source":               source,
		"consecutive_failures": consecutiveFailures,
		"last_error":           lastError,
	}).Warn("Source circuit breaker opened")
}
