package acca

import "github.com/codeplaymaker/marketplaymaker-sub000/internal/models"

// GradeConfig controls the composite tiering of candidates. The composite
// blends EV magnitude, confidence width and per-leg data quality so no
// single dimension can carry a candidate to the top tier.
type GradeConfig struct {
	// EVRef is the EV percent at which EV credit maxes out
	EVRef    float64
	EVPoints float64

	// WidthRef is the confidence band width (in EV percentage points) at
	// which confidence credit reaches zero
	WidthRef    float64
	WidthPoints float64

	// QualityPoints scales the mean leg quality score contribution
	QualityPoints float64

	// Tier minimums on the 0-100 composite
	SMin float64
	AMin float64
	BMin float64
}

// DefaultGradeConfig returns the standard tiering settings
func DefaultGradeConfig() GradeConfig {
	return GradeConfig{
		EVRef:         10,
		EVPoints:      40,
		WidthRef:      30,
		WidthPoints:   30,
		QualityPoints: 30,
		SMin:          80,
		AMin:          65,
		BMin:          50,
	}
}

// grade computes the composite score and maps it to a tier, applying the
// calibration adjuster's category multipliers when present
func (b *Builder) grade(acca *models.Accumulator) models.AccaGrade {
	g := b.cfg.Grading

	evCredit := acca.EVPercent / g.EVRef
	if evCredit > 1 {
		evCredit = 1
	}
	if evCredit < 0 {
		evCredit = 0
	}

	widthCredit := 1 - acca.EVConfidence.Width()/g.WidthRef
	if widthCredit < 0 {
		widthCredit = 0
	}
	if widthCredit > 1 {
		widthCredit = 1
	}

	quality := 0.0
	for _, leg := range acca.Legs {
		quality += leg.QualityScore
	}
	quality /= float64(len(acca.Legs)) * 100

	composite := evCredit*g.EVPoints + widthCredit*g.WidthPoints + quality*g.QualityPoints
	composite *= b.categoryMultiplier(acca)
	if composite < 0 {
		composite = 0
	}
	if composite > 100 {
		composite = 100
	}

	switch {
	case composite >= g.SMin:
		return models.AccaGradeS
	case composite >= g.AMin:
		return models.AccaGradeA
	case composite >= g.BMin:
		return models.AccaGradeB
	default:
		return models.AccaGradeC
	}
}

// categoryMultiplier averages the calibration multipliers of each leg's
// sport and bet type
func (b *Builder) categoryMultiplier(acca *models.Accumulator) float64 {
	if b.adjuster == nil {
		return 1
	}
	total := 0.0
	for _, leg := range acca.Legs {
		sportM := b.adjuster.MultiplierFor(string(leg.Sport))
		typeM := b.adjuster.MultiplierFor(string(leg.BetType))
		total += (sportM + typeM) / 2
	}
	return total / float64(len(acca.Legs))
}
