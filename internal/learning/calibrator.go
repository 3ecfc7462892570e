// Package learning recalibrates scoring from settled picks. It compares the
// realized win rate of resolved legs against the rate their fair probabilities
// implied, per category, and feeds the resulting multipliers back into edge
// scoring.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
)

// Calibrator aggregates resolved picks into per-category multipliers. It
// implements edge.Adjuster: categories with no recorded adjustment (or too
// few samples) stay at the neutral 1.0 so new categories are never penalized
// for being unseen.
type Calibrator struct {
	cfg      config.LearningConfig
	picks    repository.PickRepository
	adjs     repository.AdjustmentRepository
	log      *logrus.Logger
	learnLog *applogger.LearningLogger

	mu          sync.RWMutex
	multipliers map[string]float64
}

// New creates a calibrator. Call Load before the first build so multipliers
// persisted by earlier runs apply immediately.
func New(cfg config.LearningConfig, picks repository.PickRepository, adjs repository.AdjustmentRepository, log *logrus.Logger) *Calibrator {
	return &Calibrator{
		cfg:         cfg,
		picks:       picks,
		adjs:        adjs,
		log:         log,
		learnLog:    applogger.NewLearningLogger(log),
		multipliers: make(map[string]float64),
	}
}

// MultiplierFor returns the current multiplier for a category, 1.0 when none
// has been established.
func (c *Calibrator) MultiplierFor(category string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m, ok := c.multipliers[category]; ok {
		return m
	}
	return 1.0
}

// Load hydrates the in-memory multipliers from the adjustment store.
func (c *Calibrator) Load(ctx context.Context) error {
	stored, err := c.adjs.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load adjustments: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, adj := range stored {
		c.multipliers[adj.Category] = adj.Multiplier
		metrics.UpdateLearningMultiplier(adj.Category, adj.Multiplier)
	}

	c.log.WithField("categories", len(stored)).Info("Calibration multipliers loaded")
	return nil
}

// categoryStats accumulates one category's settled legs
type categoryStats struct {
	wins    int
	losses  int
	implied float64
}

func (s *categoryStats) samples() int {
	return s.wins + s.losses
}

// Recompute re-derives every category multiplier from resolved picks within
// the lookback window. Categories are keyed by sport and by bet type; pushes
// carry no information about probability accuracy and are skipped. Categories
// below the minimum sample size keep whatever multiplier they had.
func (c *Calibrator) Recompute(ctx context.Context, now time.Time) error {
	start := now.Add(-c.cfg.Lookback())
	resolved, err := c.picks.GetResolved(ctx, start, now)
	if err != nil {
		return fmt.Errorf("failed to fetch resolved picks: %w", err)
	}

	stats := make(map[string]*categoryStats)
	for _, pick := range resolved {
		for _, leg := range pick.Legs {
			recordLeg(stats, string(leg.Leg.Sport), leg)
			recordLeg(stats, string(leg.Leg.BetType), leg)
		}
	}

	updated := 0
	for category, s := range stats {
		if s.samples() < c.cfg.MinSampleSize {
			c.learnLog.LogCategorySkipped(category, s.samples(), c.cfg.MinSampleSize)
			continue
		}

		realized := float64(s.wins) / float64(s.samples())
		implied := s.implied / float64(s.samples())
		multiplier := c.clamp(multiplierFrom(realized, implied))

		adj := &models.LearningAdjustment{
			Category:    category,
			Multiplier:  multiplier,
			SampleSize:  s.samples(),
			RealizedWin: realized,
			ImpliedWin:  implied,
			UpdatedAt:   now,
		}
		if err := c.adjs.Upsert(ctx, adj); err != nil {
			return fmt.Errorf("failed to store adjustment for %s: %w", category, err)
		}

		c.mu.Lock()
		c.multipliers[category] = multiplier
		c.mu.Unlock()
		metrics.UpdateLearningMultiplier(category, multiplier)
		updated++

		c.learnLog.LogMultiplierUpdate(category, multiplier, realized, implied, s.samples())
	}

	c.learnLog.LogCalibrationPass(len(resolved), len(stats), updated)
	return nil
}

// recordLeg folds one settled leg into a category's tally
func recordLeg(stats map[string]*categoryStats, category string, leg models.PickLeg) {
	switch leg.Result {
	case models.LegResultWon, models.LegResultLost:
	default:
		return
	}

	s, ok := stats[category]
	if !ok {
		s = &categoryStats{}
		stats[category] = s
	}
	if leg.Result == models.LegResultWon {
		s.wins++
	} else {
		s.losses++
	}
	s.implied += leg.Leg.FairProbability
}

// multiplierFrom converts realized-vs-implied into a scoring multiplier. A
// category winning exactly as often as its fair probabilities predicted sits
// at 1.0; over- or under-performance moves it proportionally.
func multiplierFrom(realized, implied float64) float64 {
	if implied <= 0 {
		return 1.0
	}
	return realized / implied
}

func (c *Calibrator) clamp(m float64) float64 {
	if m < c.cfg.MinMultiplier {
		return c.cfg.MinMultiplier
	}
	if m > c.cfg.MaxMultiplier {
		return c.cfg.MaxMultiplier
	}
	return m
}

// Adjustments returns the stored per-category adjustments for reporting.
func (c *Calibrator) Adjustments(ctx context.Context) ([]*models.LearningAdjustment, error) {
	return c.adjs.GetAll(ctx)
}
