// Package logger provides learning-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// LearningLogger provides dedicated logging for calibration and track record updates.
type LearningLogger struct {
	*logrus.Entry
}

// NewLearningLogger creates a new learning logger.
func NewLearningLogger(baseLogger *logrus.Logger) *LearningLogger {
	return &LearningLogger{
		Entry: baseLogger.WithField("component", "learning"),
	}
}

// LogCalibrationPass logs a completed calibration recomputation.
func (ll *LearningLogger) LogCalibrationPass(picks, categories, updated int) {
	ll.WithFields(logrus.Fields{
		"picks":      picks,
		"categories": categories,
		"updated":    updated,
	}).Info("Calibration recompute complete")
}

// LogMultiplierUpdate logs one category multiplier update.
func (ll *LearningLogger) LogMultiplierUpdate(category string, multiplier, realized, implied float64, samples int) {
	ll.WithFields(logrus.Fields{
		"category":   category,
		"multiplier": multiplier,
		"realized":   realized,
		"implied":    implied,
		"samples":    samples,
	}).Info("Calibration multiplier updated")
}

// LogCategorySkipped logs a category left at its previous multiplier.
func (ll *LearningLogger) LogCategorySkipped(category string, samples, required int) {
	ll.WithFields(logrus.Fields{
		"category": category,
		"samples":  samples,
		"required": required,
	}).Debug("Category below minimum sample size, multiplier unchanged")
}

// LogTrackRecordUpdate logs track record recomputation.
func (ll *LearningLogger) LogTrackRecordUpdate(totalPicks, wins, losses int, roi, profitFactor float64) {
	ll.WithFields(logrus.Fields{
		"picks":         totalPicks,
		"wins":          wins,
		"losses":        losses,
		"roi":           roi,
		"profit_factor": profitFactor,
	}).Debug("Track record computed")
}
