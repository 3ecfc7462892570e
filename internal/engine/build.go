package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/snapshot"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/source"
)

// RunBuild executes one full build pass: scan venue markets, aggregate edge
// signals, assemble accumulators, publish the snapshot and record the audit
// row. Concurrent triggers coalesce: only one build runs at a time and the
// loser gets ErrBuildInFlight. A build that exhausts its wall-clock budget is
// abandoned and the previous snapshot stays authoritative.
func (e *Engine) RunBuild(ctx context.Context, trigger string) (*models.BuildReport, error) {
	if !e.beginBuild() {
		return nil, ErrBuildInFlight
	}
	defer e.endBuild()

	buildID := uuid.New()
	version := e.nextVersion()
	startedAt := time.Now().UTC()
	metrics.RecordBuildStarted()

	e.buildLog.LogBuildStart(buildID.String(), version, trigger)

	if err := e.builds.RecordStart(ctx, buildID, trigger, startedAt); err != nil {
		e.log.WithError(err).Warn("Failed to record build start")
	}

	buildCtx, cancel := context.WithTimeout(ctx, e.cfg.Build.Budget())
	defer cancel()

	report, snap, err := e.executeBuild(buildCtx, buildID, version, startedAt)
	if err != nil {
		metrics.RecordBuildFailed()
		if recErr := e.builds.RecordFailure(ctx, buildID, err.Error()); recErr != nil {
			e.log.WithError(recErr).Warn("Failed to record build failure")
		}
		e.buildLog.LogBuildAbandoned(buildID.String(), version, time.Since(startedAt), err.Error())
		return nil, err
	}

	// The snapshot mirror and audit row use the parent context so a nearly
	// exhausted budget cannot cut off persistence of a finished build.
	e.store.Publish(ctx, snap)
	e.refreshExposure(ctx)

	report.Duration = time.Since(startedAt)
	metrics.RecordBuildCompleted(report.Duration.Seconds())
	if err := e.builds.RecordCompletion(ctx, report); err != nil {
		e.log.WithError(err).Warn("Failed to record build completion")
	}

	e.buildLog.LogBuildCompleted(report)

	return report, nil
}

func (e *Engine) beginBuild() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.building {
		return false
	}
	e.building = true
	return true
}

func (e *Engine) endBuild() {
	e.mu.Lock()
	e.building = false
	e.mu.Unlock()
}

func (e *Engine) nextVersion() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version++
	return e.version
}

// executeBuild runs the pipeline inside the budget context. Source failures
// degrade sources; only a feed failure or an exhausted budget abandons the
// build.
func (e *Engine) executeBuild(ctx context.Context, buildID uuid.UUID, version int64, startedAt time.Time) (*models.BuildReport, *snapshot.Snapshot, error) {
	markets, err := e.feed.Markets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch venue markets: %w", err)
	}
	if len(markets) > e.cfg.Build.MaxMarkets {
		e.log.WithFields(logrus.Fields{
			"fetched": len(markets),
			"max":     e.cfg.Build.MaxMarkets,
		}).Debug("Trimming market list to build cap")
		markets = markets[:e.cfg.Build.MaxMarkets]
	}

	edges, excluded, degraded := e.scanMarkets(ctx, markets, startedAt)
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("build budget exhausted during market scan: %w", err)
	}

	pool, legDegradation, err := e.legPool(ctx, markets, startedAt)
	if err != nil {
		return nil, nil, err
	}
	if legDegradation != nil {
		degraded = appendDegradation(degraded, *legDegradation)
	}

	accas, err := e.builder.Build(ctx, pool, startedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("accumulator build: %w", err)
	}
	for i := range accas {
		metrics.RecordAccumulatorBuilt(string(accas[i].Grade), accas[i].EVPercent)
	}

	degraded = e.mergeCooldowns(degraded, startedAt)

	status := models.BuildStatusOK
	switch {
	case len(markets) == 0:
		status = models.BuildStatusEmpty
	case len(degraded) > 0:
		status = models.BuildStatusDegraded
	}

	e.proposePicks(ctx, buildID, accas, startedAt)

	snap := &snapshot.Snapshot{
		Version:      version,
		BuildID:      buildID,
		Status:       status,
		Edges:        edges,
		Accumulators: accas,
		Degraded:     degraded,
		BuiltAt:      startedAt,
	}
	report := &models.BuildReport{
		BuildID:         buildID,
		Version:         version,
		Status:          status,
		StartedAt:       startedAt,
		MarketsScanned:  len(markets) - excluded,
		MarketsExcluded: excluded,
		EdgeCount:       len(edges),
		AccaCount:       len(accas),
		Degraded:        degraded,
	}
	return report, snap, nil
}

// scanMarkets analyzes every market under the bounded worker pool and folds
// the results into a deterministic edge list plus deduplicated degradations.
// Signals below the serve-score floor are computed but never served.
func (e *Engine) scanMarkets(ctx context.Context, markets []models.Market, now time.Time) ([]models.EdgeSignal, int, []models.SourceDegradation) {
	analyses := e.analyzeAll(ctx, markets, now)

	edges := make([]models.EdgeSignal, 0, len(analyses))
	excluded := 0
	belowFloor := 0
	var degraded []models.SourceDegradation
	seen := make(map[models.SourceKey]struct{})

	for i := range analyses {
		switch analyses[i].Status {
		case AnalysisExcluded:
			excluded++
		case AnalysisOK:
			if analyses[i].Signal.QualityScore < e.cfg.Edge.MinServeScore {
				belowFloor++
			} else {
				edges = append(edges, *analyses[i].Signal)
			}
		}
		for _, d := range analyses[i].Degraded {
			if _, dup := seen[d.Source]; dup {
				continue
			}
			seen[d.Source] = struct{}{}
			degraded = append(degraded, d)
		}
	}
	if belowFloor > 0 {
		e.log.WithFields(logrus.Fields{
			"dropped": belowFloor,
			"floor":   e.cfg.Edge.MinServeScore,
		}).Debug("Edge signals below serve-score floor withheld from snapshot")
	}

	sortEdges(edges)
	return edges, excluded, degraded
}

// sortEdges orders the served edge list independently of scan completion
// order: strongest quality first, widest divergence breaking ties
func sortEdges(edges []models.EdgeSignal) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].QualityScore != edges[j].QualityScore {
			return edges[i].QualityScore > edges[j].QualityScore
		}
		di, dj := abs(edges[i].Divergence), abs(edges[j].Divergence)
		if di != dj {
			return di > dj
		}
		return edges[i].MarketID < edges[j].MarketID
	})
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// legPool fetches devigged candidate legs. A leg source failure degrades the
// sportsbook source and leaves accumulators empty rather than failing the
// build; an exhausted budget still aborts.
func (e *Engine) legPool(ctx context.Context, markets []models.Market, now time.Time) ([]models.AccaLeg, *models.SourceDegradation, error) {
	if e.legs == nil {
		return nil, nil, nil
	}
	pool, err := e.legs.Legs(ctx, markets, now)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("build budget exhausted fetching candidate legs: %w", ctxErr)
		}
		e.log.WithError(err).Warn("Candidate leg fetch failed, skipping accumulators this build")
		degradation := degradationFor(models.SourceSportsOdds, err)
		return nil, &degradation, nil
	}
	return pool, nil, nil
}

// mergeCooldowns folds active rate-limit cooldowns into the degradation
// metadata so consumers can see which sources sat out the build
func (e *Engine) mergeCooldowns(degraded []models.SourceDegradation, now time.Time) []models.SourceDegradation {
	if e.cooldowns == nil {
		return degraded
	}
	for key, until := range e.cooldowns() {
		if !until.After(now) {
			continue
		}
		retry := until
		degraded = appendDegradation(degraded, models.SourceDegradation{
			Source:     key,
			Code:       source.ErrCodeRateLimited,
			Message:    "cooling down after rate limit",
			RetryAfter: &retry,
		})
	}
	return degraded
}

func appendDegradation(degraded []models.SourceDegradation, d models.SourceDegradation) []models.SourceDegradation {
	for i := range degraded {
		if degraded[i].Source == d.Source {
			return degraded
		}
	}
	return append(degraded, d)
}

// proposePicks saves accumulators at or above the configured grade floor as
// pending paper picks, closing the loop to the resolver. Skeptically flagged
// candidates and zero-stake candidates never become picks.
func (e *Engine) proposePicks(ctx context.Context, buildID uuid.UUID, accas []models.Accumulator, now time.Time) int {
	floor := models.AccaGrade(e.cfg.Build.ProposeGrade)
	if floor == "" || e.cfg.Build.MaxProposalsPerBuild <= 0 {
		return 0
	}

	proposed := 0
	for i := range accas {
		if proposed == e.cfg.Build.MaxProposalsPerBuild {
			break
		}
		candidate := accas[i]
		if !candidate.Grade.AtLeast(floor) || candidate.Skeptical || candidate.KellyStake <= 0 {
			continue
		}

		legs := make([]models.PickLeg, len(candidate.Legs))
		for j, leg := range candidate.Legs {
			legs[j] = models.PickLeg{Leg: leg, Result: models.LegResultPending}
		}
		pick := &models.ResolvedPick{
			PickID:              uuid.New(),
			AccaID:              candidate.ID,
			BuildID:             buildID,
			Legs:                legs,
			Status:              models.PickStatusPending,
			OverallResult:       models.LegResultPending,
			Stake:               candidate.KellyStake,
			CombinedOdds:        candidate.CombinedOdds,
			AdjustedProbability: candidate.CorrelationAdjustedProbability,
			EVPercent:           candidate.EVPercent,
			Grade:               candidate.Grade,
			SavedAt:             now,
		}
		if err := e.picks.Create(ctx, pick); err != nil {
			e.log.WithFields(logrus.Fields{
				"acca_id": candidate.ID,
				"error":   err.Error(),
			}).Error("Failed to save proposed pick")
			continue
		}

		proposed++
		metrics.RecordPickProposed()
		e.audit.LogPickProposal(pick.PickID.String(), buildID.String(), len(pick.Legs),
			pick.CombinedOdds, pick.AdjustedProbability, pick.EVPercent, pick.Stake, string(pick.Grade))
	}
	return proposed
}
