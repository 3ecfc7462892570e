package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
)

// ResultFeed supplies final event outcomes for settlement. The sports odds
// adapter implements it on top of its scores endpoint.
type ResultFeed interface {
	Results(ctx context.Context, sports []models.Sport, eventIDs []string) (map[string]*models.EventResult, error)
}

// PassReport summarizes one resolution pass
type PassReport struct {
	Checked          int           `json:"checked"`
	LegsSettled      int           `json:"legs_settled"`
	PartiallySettled int           `json:"partially_settled"`
	Resolved         int           `json:"resolved"`
	Errors           int           `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// Resolver drives picks through the settlement state machine: pending,
// partially settled once any leg is terminal, resolved once every leg is.
// PnL is computed exactly once at the resolved transition; the repository's
// resolved_at guard makes a repeated transition a no-op.
type Resolver struct {
	picks repository.PickRepository
	feed  ResultFeed
	log   *logrus.Logger
	audit *applogger.AuditLogger
}

// New creates a Resolver
func New(picks repository.PickRepository, feed ResultFeed, log *logrus.Logger) *Resolver {
	return &Resolver{
		picks: picks,
		feed:  feed,
		log:   log,
		audit: applogger.NewAuditLogger(log),
	}
}

// Run executes one resolution pass over every unresolved pick. A feed failure
// aborts the pass without touching any pick; per-pick persistence failures are
// logged and skipped so the rest of the pass proceeds.
func (r *Resolver) Run(ctx context.Context, now time.Time) (*PassReport, error) {
	start := time.Now()

	picks, err := r.picks.GetUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unresolved picks: %w", err)
	}

	report := &PassReport{Checked: len(picks)}
	if len(picks) == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	sports, eventIDs := pendingEvents(picks)
	results, err := r.feed.Results(ctx, sports, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event results: %w", err)
	}

	for _, pick := range picks {
		prevStatus := pick.Status
		settled := settleLegs(pick, results, now)
		if settled == 0 {
			continue
		}
		report.LegsSettled += settled

		if pick.PendingLegCount() > 0 {
			pick.Status = models.PickStatusPartiallySettled
			if err := r.picks.UpdateLegs(ctx, pick); err != nil {
				r.logPickError(pick, err, &report.Errors)
				continue
			}
			report.PartiallySettled++
			r.audit.LogPickStateChange(pick.PickID.String(), string(prevStatus), string(pick.Status),
				len(pick.Legs)-pick.PendingLegCount(), len(pick.Legs))
			continue
		}

		outcome, pnl := settlePick(pick)
		pick.Status = models.PickStatusResolved
		pick.OverallResult = outcome
		pick.PnL = &pnl
		resolvedAt := now
		pick.ResolvedAt = &resolvedAt

		if err := r.picks.Finalize(ctx, pick); err != nil {
			if errors.Is(err, models.ErrAlreadyResolved) {
				r.log.WithField("pick_id", pick.PickID).Debug("Pick already resolved, skipping")
				continue
			}
			r.logPickError(pick, err, &report.Errors)
			continue
		}

		report.Resolved++
		metrics.RecordPickOutcome(string(outcome))
		r.audit.LogPickResolution(pick.PickID.String(), string(outcome), pick.Stake, pnl, resolvedAt)
	}

	report.Duration = time.Since(start)
	metrics.RecordResolutionPass(report.Duration.Seconds())
	r.log.WithFields(logrus.Fields{
		"checked":           report.Checked,
		"legs_settled":      report.LegsSettled,
		"partially_settled": report.PartiallySettled,
		"resolved":          report.Resolved,
		"errors":            report.Errors,
	}).Info("Resolution pass completed")

	return report, nil
}

func (r *Resolver) logPickError(pick *models.ResolvedPick, err error, errCount *int) {
	*errCount++
	r.log.WithFields(logrus.Fields{
		"pick_id": pick.PickID,
		"error":   err.Error(),
	}).Error("Failed to persist pick settlement")
}

// pendingEvents collects the sports and event ids still awaiting results
func pendingEvents(picks []*models.ResolvedPick) ([]models.Sport, []string) {
	sportSet := make(map[models.Sport]struct{})
	eventSet := make(map[string]struct{})
	for _, pick := range picks {
		for _, leg := range pick.Legs {
			if leg.Result.IsTerminal() {
				continue
			}
			sportSet[leg.Leg.Sport] = struct{}{}
			eventSet[leg.Leg.EventID] = struct{}{}
		}
	}

	sports := make([]models.Sport, 0, len(sportSet))
	for s := range sportSet {
		sports = append(sports, s)
	}
	eventIDs := make([]string, 0, len(eventSet))
	for id := range eventSet {
		eventIDs = append(eventIDs, id)
	}
	return sports, eventIDs
}

// settleLegs applies event results to the pick's pending legs and returns how
// many legs reached a terminal result
func settleLegs(pick *models.ResolvedPick, results map[string]*models.EventResult, now time.Time) int {
	settled := 0
	for i := range pick.Legs {
		leg := &pick.Legs[i]
		if leg.Result.IsTerminal() {
			continue
		}
		result := results[leg.Leg.EventID].ResultFor(leg.Leg.BetType, leg.Leg.Pick)
		if !result.IsTerminal() {
			continue
		}

		leg.Result = result
		settledAt := now
		if r := results[leg.Leg.EventID]; !r.SettledAt.IsZero() {
			settledAt = r.SettledAt
		}
		leg.SettledAt = &settledAt
		settled++
	}
	return settled
}

// settlePick computes the overall result and PnL of a fully settled pick. A
// push leg drops out of the multiple: its odds do not contribute, and a pick
// whose every leg pushed returns the stake.
func settlePick(pick *models.ResolvedPick) (models.LegResult, float64) {
	payoutOdds := 1.0
	anyWon := false
	for _, leg := range pick.Legs {
		switch leg.Result {
		case models.LegResultLost:
			return models.LegResultLost, -pick.Stake
		case models.LegResultWon:
			payoutOdds *= leg.Leg.DecimalOdds
			anyWon = true
		}
	}
	if !anyWon {
		return models.LegResultPush, 0
	}
	return models.LegResultWon, pick.Stake * (payoutOdds - 1)
}
