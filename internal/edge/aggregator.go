package edge

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Config controls estimate aggregation and quality scoring
type Config struct {
	// EstimateTTL excludes estimates older than this from aggregation
	EstimateTTL time.Duration

	// RecencyHalfLife halves an estimate's weight for every interval of age
	RecencyHalfLife time.Duration

	// SourceWeights are the base reliability weights per source. Hard data
	// sources outweigh crowd and model sources.
	SourceWeights map[models.SourceKey]float64

	// StrongThreshold and ModerateThreshold classify signal strength from
	// absolute divergence
	StrongThreshold   float64
	ModerateThreshold float64

	// Quality score composition. DiversityPoints and AgreementPoints plus
	// HardSourcePoints sum to the 100-point scale.
	DiversityPoints  float64
	AgreementPoints  float64
	HardSourcePoints float64

	// AgreementSigmaRef is the estimate spread at which agreement credit
	// reaches zero
	AgreementSigmaRef float64
}

// DefaultConfig returns the standard aggregation settings
func DefaultConfig() Config {
	return Config{
		EstimateTTL:     6 * time.Hour,
		RecencyHalfLife: 2 * time.Hour,
		SourceWeights: map[models.SourceKey]float64{
			models.SourceSportsOdds:        1.0,
			models.SourceRegulatedExchange: 0.9,
			models.SourceFinancialProxy:    0.8,
			models.SourceCrossPlatform:     0.6,
			models.SourceForecastCrowd:     0.5,
			models.SourceLanguageModel:     0.3,
		},
		StrongThreshold:   0.05,
		ModerateThreshold: 0.02,
		DiversityPoints:   35,
		AgreementPoints:   35,
		HardSourcePoints:  30,
		AgreementSigmaRef: 0.15,
	}
}

// FromConfig converts app config to aggregation config. Source weights
// absent from the app config keep their defaults.
func FromConfig(cfg config.EdgeConfig) Config {
	out := DefaultConfig()
	out.EstimateTTL = cfg.EstimateTTL()
	out.RecencyHalfLife = cfg.RecencyHalfLife()
	out.StrongThreshold = cfg.StrongThreshold
	out.ModerateThreshold = cfg.ModerateThreshold
	out.DiversityPoints = cfg.DiversityPoints
	out.AgreementPoints = cfg.AgreementPoints
	out.HardSourcePoints = cfg.HardSourcePoints
	out.AgreementSigmaRef = cfg.AgreementSigmaRef
	for name, weight := range cfg.SourceWeights {
		out.SourceWeights[models.SourceKey(name)] = weight
	}
	return out
}

// languageModelOnlyScoreCap keeps model-only signals in grade D no matter
// how large their divergence is: an unfounded signal must never rank as
// actionable. The cap sits just below the grade C breakpoint so the
// score/grade relationship stays a pure function.
const languageModelOnlyScoreCap = models.GradeCMinScore - 1

// diversityFullCredit is the distinct source count at which diversity
// credit maxes out
const diversityFullCredit = 4

// Adjuster biases quality scoring with calibration feedback. The learning
// module implements it; a nil Adjuster leaves scores unchanged.
type Adjuster interface {
	MultiplierFor(category string) float64
}

// Aggregator merges independent source estimates for one market into a
// single probability with a quality grade and divergence score. Pure with
// respect to its inputs: results are cacheable by (market, inputs hash).
type Aggregator struct {
	cfg      Config
	adjuster Adjuster
	log      *logrus.Logger
}

// New creates an Aggregator
func New(cfg Config, adjuster Adjuster, log *logrus.Logger) *Aggregator {
	if cfg.EstimateTTL <= 0 {
		cfg.EstimateTTL = 6 * time.Hour
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 2 * time.Hour
	}
	if cfg.SourceWeights == nil {
		cfg.SourceWeights = DefaultConfig().SourceWeights
	}
	if cfg.AgreementSigmaRef <= 0 {
		cfg.AgreementSigmaRef = 0.15
	}
	return &Aggregator{cfg: cfg, adjuster: adjuster, log: log}
}

// Aggregate computes the edge signal for one market from its current quote
// and source estimates. Stale or out-of-range estimates are dropped; if
// nothing usable remains the market yields ErrInsufficientData rather than
// a fabricated signal.
func (a *Aggregator) Aggregate(quote models.MarketQuote, estimates []models.SourceEstimate, sport models.Sport, now time.Time) (*models.EdgeSignal, error) {
	usable := make([]models.SourceEstimate, 0, len(estimates))
	for _, est := range estimates {
		if est.IsStale(now, a.cfg.EstimateTTL) {
			continue
		}
		if est.Probability < 0 || est.Probability > 1 {
			a.log.WithFields(logrus.Fields{
				"market_id": quote.MarketID,
				"source":    est.SourceKey,
				"prob":      est.Probability,
			}).Warn("Dropping out-of-range source estimate")
			continue
		}
		usable = append(usable, est)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("edge: market %s has no usable estimates: %w", quote.MarketID, models.ErrInsufficientData)
	}

	weights := make([]float64, len(usable))
	var weightSum, weightedProb float64
	for i, est := range usable {
		w := a.effectiveWeight(est, now)
		weights[i] = w
		weightSum += w
		weightedProb += w * est.Probability
	}
	if weightSum <= 0 {
		return nil, fmt.Errorf("edge: market %s estimates carry no weight: %w", quote.MarketID, models.ErrInsufficientData)
	}
	aggregate := weightedProb / weightSum

	score, modelOnly := a.qualityScore(usable, weights, weightSum, aggregate)
	if a.adjuster != nil {
		score = clampScore(score * a.adjuster.MultiplierFor(string(sport)))
	}
	// The model-only cap is applied last so no calibration multiplier can
	// lift an unfounded signal back above grade D.
	if modelOnly && score > languageModelOnlyScoreCap {
		score = languageModelOnlyScoreCap
	}
	grade := models.GradeForScore(score)

	divergence := aggregate - quote.ImpliedProbability
	strength := a.strength(divergence, grade)

	contributions := make([]models.SourceContribution, len(usable))
	for i, est := range usable {
		contributions[i] = models.SourceContribution{
			Key:            est.SourceKey,
			Probability:    est.Probability,
			Weight:         weights[i] / weightSum,
			Detail:         est.Detail.Summary(),
			MatchQuality:   est.MatchQuality,
			MatchValidated: est.MatchValidated,
		}
	}

	return &models.EdgeSignal{
		MarketID:              quote.MarketID,
		Sport:                 sport,
		AggregatedProbability: aggregate,
		MarketProbability:     quote.ImpliedProbability,
		Divergence:            divergence,
		SourceCount:           len(usable),
		QualityScore:          score,
		QualityGrade:          grade,
		SignalStrength:        strength,
		Sources:               contributions,
		ComputedAt:            now,
	}, nil
}

// effectiveWeight combines the source's base reliability, the adapter's own
// weight (match quality, model confidence) and recency decay
func (a *Aggregator) effectiveWeight(est models.SourceEstimate, now time.Time) float64 {
	base, ok := a.cfg.SourceWeights[est.SourceKey]
	if !ok {
		base = 0.5
	}
	own := est.Weight
	if own <= 0 {
		own = 1
	}
	age := now.Sub(est.ObservedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Pow(0.5, age.Hours()/a.cfg.RecencyHalfLife.Hours())
	return base * own * recency
}

// qualityScore composes diversity, agreement and hard-source credit on a
// 0-100 scale. It also reports whether every usable estimate came from the
// language model, so the caller can enforce the grade cap after any
// calibration adjustment.
func (a *Aggregator) qualityScore(usable []models.SourceEstimate, weights []float64, weightSum, aggregate float64) (float64, bool) {
	distinct := make(map[models.SourceKey]struct{}, len(usable))
	hard := false
	modelOnly := true
	for _, est := range usable {
		distinct[est.SourceKey] = struct{}{}
		if est.IsHard() {
			hard = true
		}
		if est.SourceKey != models.SourceLanguageModel {
			modelOnly = false
		}
	}

	d := len(distinct)
	if d > diversityFullCredit {
		d = diversityFullCredit
	}
	score := float64(d) / diversityFullCredit * a.cfg.DiversityPoints

	if len(usable) >= 2 {
		variance := 0.0
		for i, est := range usable {
			diff := est.Probability - aggregate
			variance += weights[i] * diff * diff
		}
		variance /= weightSum
		sigma := math.Sqrt(variance)
		agreement := 1 - sigma/a.cfg.AgreementSigmaRef
		if agreement < 0 {
			agreement = 0
		}
		score += agreement * a.cfg.AgreementPoints
	}

	if hard {
		score += a.cfg.HardSourcePoints
	}

	score = clampScore(score)
	if modelOnly && score > languageModelOnlyScoreCap {
		score = languageModelOnlyScoreCap
	}
	return score, modelOnly
}

func (a *Aggregator) strength(divergence float64, grade models.QualityGrade) models.SignalStrength {
	abs := math.Abs(divergence)
	if abs >= a.cfg.StrongThreshold && grade.AtLeast(models.GradeB) {
		return models.SignalStrong
	}
	if abs >= a.cfg.ModerateThreshold {
		return models.SignalModerate
	}
	return models.SignalWeak
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
