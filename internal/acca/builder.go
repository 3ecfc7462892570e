package acca

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/correlation"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Config controls candidate generation and filtering
type Config struct {
	// MinLegs and MaxLegs bound combination size. MaxLegs above 6 is
	// rejected at config validation; combination counts explode past that.
	MinLegs int
	MaxLegs int

	// MaxPool trims the leg pool to the strongest candidates before
	// enumeration
	MaxPool int

	// FreshnessWindow drops legs whose quote is older than this
	FreshnessWindow time.Duration

	// MinEVPercent is the floor below which candidates are discarded
	MinEVPercent float64

	// SkepticismEVPercent flags (without dropping) candidates whose EV is
	// implausibly high, which usually means a stale or thin line
	SkepticismEVPercent float64

	// CrossSportOnly restricts combinations to legs from distinct sports
	CrossSportOnly bool

	// MaxPerLeg caps how many proposed accumulators may share one leg
	MaxPerLeg int

	// MaxResults bounds the ranked output
	MaxResults int

	MonteCarlo MonteCarloConfig
	Grading    GradeConfig
}

// DefaultConfig returns the standard builder settings
func DefaultConfig() Config {
	return Config{
		MinLegs:             2,
		MaxLegs:             4,
		MaxPool:             20,
		FreshnessWindow:     30 * time.Minute,
		MinEVPercent:        1.0,
		SkepticismEVPercent: 15.0,
		CrossSportOnly:      false,
		MaxPerLeg:           2,
		MaxResults:          20,
		MonteCarlo:          DefaultMonteCarloConfig(),
		Grading:             DefaultGradeConfig(),
	}
}

// FromConfig converts app config to builder config
func FromConfig(cfg config.AccaConfig) Config {
	return Config{
		MinLegs:             cfg.MinLegs,
		MaxLegs:             cfg.MaxLegs,
		MaxPool:             cfg.MaxPool,
		FreshnessWindow:     cfg.FreshnessWindow(),
		MinEVPercent:        cfg.MinEVPercent,
		SkepticismEVPercent: cfg.SkepticismEVPercent,
		CrossSportOnly:      cfg.CrossSportOnly,
		MaxPerLeg:           cfg.MaxPerLeg,
		MaxResults:          cfg.MaxResults,
		MonteCarlo: MonteCarloConfig{
			Iterations:     cfg.MonteCarlo.Iterations,
			Seed:           cfg.MonteCarlo.Seed,
			LowPercentile:  cfg.MonteCarlo.LowPercentile,
			HighPercentile: cfg.MonteCarlo.HighPercentile,
			DefaultSigma:   cfg.MonteCarlo.DefaultSigma,
		},
		Grading: GradeConfig{
			EVRef:         cfg.Grading.EVRef,
			EVPoints:      cfg.Grading.EVPoints,
			WidthRef:      cfg.Grading.WidthRef,
			WidthPoints:   cfg.Grading.WidthPoints,
			QualityPoints: cfg.Grading.QualityPoints,
			SMin:          cfg.Grading.SMin,
			AMin:          cfg.Grading.AMin,
			BMin:          cfg.Grading.BMin,
		},
	}
}

// Adjuster biases grading with calibration feedback, keyed by sport or bet
// type category
type Adjuster interface {
	MultiplierFor(category string) float64
}

// Staker sizes a stake for a graded accumulator
type Staker interface {
	StakeFor(acca *models.Accumulator) float64
}

// Builder assembles correlation-aware accumulators from a pool of candidate
// legs
type Builder struct {
	cfg      Config
	model    *correlation.Model
	staker   Staker
	adjuster Adjuster
	rng      *rand.Rand
	log      *logrus.Logger
}

// New creates a Builder. staker and adjuster may be nil.
func New(cfg Config, model *correlation.Model, staker Staker, adjuster Adjuster, log *logrus.Logger) *Builder {
	if cfg.MinLegs < 2 {
		cfg.MinLegs = 2
	}
	if cfg.MaxLegs < cfg.MinLegs {
		cfg.MaxLegs = cfg.MinLegs
	}
	if cfg.MaxLegs > 6 {
		cfg.MaxLegs = 6
	}
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = 20
	}
	if cfg.MaxPerLeg <= 0 {
		cfg.MaxPerLeg = 2
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	seed := cfg.MonteCarlo.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Builder{
		cfg:      cfg,
		model:    model,
		staker:   staker,
		adjuster: adjuster,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log,
	}
}

// Build filters the leg pool, enumerates distinct-event combinations,
// prices each candidate and returns the ranked, exposure-capped proposals.
// Cancellation returns ctx.Err; the caller keeps serving its previous
// results.
func (b *Builder) Build(ctx context.Context, pool []models.AccaLeg, now time.Time) ([]models.Accumulator, error) {
	legs := b.filterPool(pool, now)
	if len(legs) < b.cfg.MinLegs {
		b.log.WithFields(logrus.Fields{
			"pool":     len(pool),
			"eligible": len(legs),
		}).Info("Leg pool too small for accumulators")
		return nil, nil
	}

	var candidates []models.Accumulator
	combo := make([]models.AccaLeg, 0, b.cfg.MaxLegs)
	if err := b.enumerate(ctx, legs, 0, combo, &candidates, now); err != nil {
		return nil, err
	}

	ranked := b.rank(candidates)
	capped := b.capExposure(ranked)

	b.log.WithFields(logrus.Fields{
		"eligible_legs": len(legs),
		"candidates":    len(candidates),
		"proposed":      len(capped),
	}).Info("Accumulator build complete")
	return capped, nil
}

// filterPool applies the data-hygiene filter: future events only, fresh
// quotes only, sane prices only. The survivors are trimmed to the
// strongest MaxPool legs by single-leg EV.
func (b *Builder) filterPool(pool []models.AccaLeg, now time.Time) []models.AccaLeg {
	eligible := make([]models.AccaLeg, 0, len(pool))
	for _, leg := range pool {
		if !leg.EventStart.After(now) {
			continue
		}
		if b.cfg.FreshnessWindow > 0 && now.Sub(leg.QuotedAt) > b.cfg.FreshnessWindow {
			continue
		}
		if leg.DecimalOdds <= 1 || leg.FairProbability <= 0 || leg.FairProbability >= 1 {
			continue
		}
		eligible = append(eligible, leg)
	}

	sort.Slice(eligible, func(i, j int) bool {
		evI := eligible[i].FairProbability*eligible[i].DecimalOdds - 1
		evJ := eligible[j].FairProbability*eligible[j].DecimalOdds - 1
		if evI != evJ {
			return evI > evJ
		}
		return eligible[i].EventID < eligible[j].EventID
	})
	if len(eligible) > b.cfg.MaxPool {
		eligible = eligible[:b.cfg.MaxPool]
	}
	return eligible
}

// enumerate walks combinations of MinLegs..MaxLegs legs over distinct
// events (and distinct sports when CrossSportOnly), pricing each candidate
func (b *Builder) enumerate(ctx context.Context, legs []models.AccaLeg, start int, combo []models.AccaLeg, out *[]models.Accumulator, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(combo) >= b.cfg.MinLegs {
		if acca, ok := b.price(combo, now); ok {
			*out = append(*out, acca)
		}
	}
	if len(combo) == b.cfg.MaxLegs {
		return nil
	}
	for i := start; i < len(legs); i++ {
		if conflicts(combo, legs[i], b.cfg.CrossSportOnly) {
			continue
		}
		if err := b.enumerate(ctx, legs, i+1, append(combo, legs[i]), out, now); err != nil {
			return err
		}
	}
	return nil
}

func conflicts(combo []models.AccaLeg, leg models.AccaLeg, crossSportOnly bool) bool {
	for _, c := range combo {
		if c.EventID == leg.EventID {
			return true
		}
		if crossSportOnly && c.Sport == leg.Sport {
			return true
		}
	}
	return false
}

// price computes probability, EV, confidence and grade for one candidate.
// Candidates below the EV floor are dropped here; implausibly high EV is
// flagged skeptical but kept.
func (b *Builder) price(combo []models.AccaLeg, now time.Time) (models.Accumulator, bool) {
	combinedOdds := 1.0
	independent := 1.0
	for _, leg := range combo {
		combinedOdds *= leg.DecimalOdds
		independent *= leg.FairProbability
	}

	adjusted, avgCorr := b.model.AdjustProbability(independent, combo)
	evPercent := (combinedOdds*adjusted - 1) * 100
	if evPercent < b.cfg.MinEVPercent {
		return models.Accumulator{}, false
	}

	legs := make([]models.AccaLeg, len(combo))
	copy(legs, combo)

	interval := b.evInterval(legs, combinedOdds, adjusted/independent)

	sports := make(map[models.Sport]struct{}, len(legs))
	for _, leg := range legs {
		sports[leg.Sport] = struct{}{}
	}

	acca := models.Accumulator{
		ID:                             uuid.New(),
		Legs:                           legs,
		CombinedOdds:                   combinedOdds,
		IndependentProbability:         independent,
		CorrelationAdjustedProbability: adjusted,
		EVPercent:                      evPercent,
		EVConfidence:                   interval,
		AvgCorrelation:                 avgCorr,
		CrossSport:                     len(sports) > 1,
		CreatedAt:                      now,
	}
	if err := acca.Validate(); err != nil {
		return models.Accumulator{}, false
	}

	acca.Grade = b.grade(&acca)
	if b.cfg.SkepticismEVPercent > 0 && evPercent > b.cfg.SkepticismEVPercent {
		acca.Skeptical = true
		acca.SkepticNote = fmt.Sprintf("EV %.1f%% above %.1f%% threshold, verify line freshness before acting",
			evPercent, b.cfg.SkepticismEVPercent)
	}
	if b.staker != nil {
		acca.KellyStake = b.staker.StakeFor(&acca)
	}
	return acca, true
}

// rank orders candidates by grade tier, then EV
func (b *Builder) rank(candidates []models.Accumulator) []models.Accumulator {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Grade != candidates[j].Grade {
			return candidates[i].Grade.AtLeast(candidates[j].Grade)
		}
		return candidates[i].EVPercent > candidates[j].EVPercent
	})
	return candidates
}

// capExposure walks the ranked list, dropping accumulators whose legs are
// already used MaxPerLeg times so one mispriced line cannot dominate the
// proposals
func (b *Builder) capExposure(ranked []models.Accumulator) []models.Accumulator {
	used := make(map[string]int)
	out := make([]models.Accumulator, 0, b.cfg.MaxResults)
	for _, acca := range ranked {
		if len(out) == b.cfg.MaxResults {
			break
		}
		over := false
		for _, leg := range acca.Legs {
			if used[legKey(leg)] >= b.cfg.MaxPerLeg {
				over = true
				break
			}
		}
		if over {
			continue
		}
		for _, leg := range acca.Legs {
			used[legKey(leg)]++
		}
		out = append(out, acca)
	}
	return out
}

func legKey(leg models.AccaLeg) string {
	return leg.EventID + "|" + leg.Pick
}
