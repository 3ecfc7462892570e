package devig

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Method selection modes
const (
	MethodAuto           = "auto"
	MethodMultiplicative = "multiplicative"
	MethodShin           = "shin"
)

// Config controls devigging behavior
type Config struct {
	// MinBooks is the minimum number of qualifying bookmakers required
	// before an event produces fair prices at all
	MinBooks int

	// Method selects the vig-removal technique: auto picks multiplicative
	// for two-way markets and Shin for three or more outcomes
	Method string

	// ShinMaxIterations bounds the Shin solver before falling back to
	// the multiplicative method
	ShinMaxIterations int

	// ShinTolerance is the convergence threshold on the insider fraction z
	ShinTolerance float64

	// OutlierSigma flags the primary book when its fair probability sits
	// more than this many standard deviations from the book median
	OutlierSigma float64
}

// DefaultConfig returns the standard devig settings
func DefaultConfig() Config {
	return Config{
		MinBooks:          3,
		Method:            MethodAuto,
		ShinMaxIterations: 100,
		ShinTolerance:     1e-10,
		OutlierSigma:      2.0,
	}
}

// FromConfig converts app config to devig config
func FromConfig(cfg config.DevigConfig) Config {
	return Config{
		MinBooks:          cfg.MinBooks,
		Method:            cfg.Method,
		ShinMaxIterations: cfg.ShinMaxIterations,
		ShinTolerance:     cfg.ShinTolerance,
		OutlierSigma:      cfg.OutlierSigma,
	}
}

// Result is the devigged view of one event
type Result struct {
	Prices    []models.FairPrice
	BookCount int
	AvgVig    float64
	Method    models.DevigMethod
	// Fallback is set when the Shin solver failed to converge and the
	// multiplicative method was used instead
	Fallback bool
}

// Devigger converts book-quoted prices for an event into fair probabilities
type Devigger struct {
	cfg Config
	log *logrus.Logger
}

// New creates a Devigger
func New(cfg Config, log *logrus.Logger) *Devigger {
	if cfg.MinBooks <= 0 {
		cfg.MinBooks = 3
	}
	if cfg.ShinMaxIterations <= 0 {
		cfg.ShinMaxIterations = 100
	}
	if cfg.ShinTolerance <= 0 {
		cfg.ShinTolerance = 1e-10
	}
	if cfg.OutlierSigma <= 0 {
		cfg.OutlierSigma = 2.0
	}
	if cfg.Method == "" {
		cfg.Method = MethodAuto
	}
	return &Devigger{cfg: cfg, log: log}
}

// bookLine is one bookmaker's full quote set for the event, ordered by the
// event's outcome labels
type bookLine struct {
	name      string
	rank      int
	quotes    []models.BookQuote
	fairProbs []float64
	vig       float64
	fallback  bool
}

// Devig converts the book quotes for one event into a fair price per
// outcome. Quotes must all belong to the same event. The sharpest
// qualifying book is the primary fair-price source; the median across
// books replaces it when it prices like an outlier.
func (d *Devigger) Devig(quotes []models.BookQuote) (*Result, error) {
	if len(quotes) == 0 {
		return nil, fmt.Errorf("devig: no quotes: %w", models.ErrInsufficientData)
	}
	eventID := quotes[0].EventID

	outcomes := outcomeLabels(quotes)
	if len(outcomes) < 2 {
		return nil, fmt.Errorf("devig: event %s has %d outcomes: %w", eventID, len(outcomes), models.ErrInsufficientData)
	}

	lines := d.qualifyingLines(quotes, outcomes)
	if len(lines) < d.cfg.MinBooks {
		return nil, fmt.Errorf("devig: event %s has %d qualifying books, need %d: %w",
			eventID, len(lines), d.cfg.MinBooks, models.ErrInsufficientData)
	}

	anyFallback := false
	totalVig := 0.0
	for i := range lines {
		implied := make([]float64, len(outcomes))
		for j, q := range lines[i].quotes {
			implied[j] = q.ImpliedProbability()
		}
		fair, fallback, err := d.removeVig(implied)
		if err != nil {
			return nil, fmt.Errorf("devig: event %s book %s: %w", eventID, lines[i].name, err)
		}
		lines[i].fairProbs = fair
		lines[i].fallback = fallback
		lines[i].vig = Overround(implied)
		anyFallback = anyFallback || fallback
		totalVig += lines[i].vig
	}

	primary := &lines[0]
	method := d.methodFor(len(outcomes))
	if primary.fallback {
		method = models.DevigMultiplicative
	}

	prices := pricesFromLine(eventID, outcomes, primary, method)
	if d.isOutlier(primary, lines, outcomes) {
		d.log.WithFields(logrus.Fields{
			"event_id": eventID,
			"book":     primary.name,
			"books":    len(lines),
		}).Warn("Primary book prices like an outlier, using book median")
		prices = medianPrices(eventID, outcomes, lines)
		method = models.DevigMedian
	}

	if anyFallback && method != models.DevigMedian {
		d.log.WithFields(logrus.Fields{
			"event_id": eventID,
			"outcomes": len(outcomes),
		}).Debug("Shin solver did not converge, fell back to multiplicative")
	}

	return &Result{
		Prices:    prices,
		BookCount: len(lines),
		AvgVig:    totalVig / float64(len(lines)),
		Method:    method,
		Fallback:  anyFallback,
	}, nil
}

// removeVig dispatches on the configured method and outcome count and
// reports whether a Shin fallback occurred
func (d *Devigger) removeVig(implied []float64) ([]float64, bool, error) {
	switch d.methodFor(len(implied)) {
	case models.DevigShin:
		fair, _, err := Shin(implied, d.cfg.ShinMaxIterations, d.cfg.ShinTolerance)
		if err == nil {
			return fair, false, nil
		}
		fair, merr := Multiplicative(implied)
		return fair, true, merr
	default:
		fair, err := Multiplicative(implied)
		return fair, false, err
	}
}

func (d *Devigger) methodFor(outcomes int) models.DevigMethod {
	switch d.cfg.Method {
	case MethodMultiplicative:
		return models.DevigMultiplicative
	case MethodShin:
		return models.DevigShin
	default:
		if outcomes >= 3 {
			return models.DevigShin
		}
		return models.DevigMultiplicative
	}
}

// qualifyingLines groups quotes by bookmaker and keeps books covering every
// outcome, sorted sharpest first
func (d *Devigger) qualifyingLines(quotes []models.BookQuote, outcomes []string) []bookLine {
	index := make(map[string]int, len(outcomes))
	for i, label := range outcomes {
		index[label] = i
	}

	byBook := make(map[string][]models.BookQuote)
	ranks := make(map[string]int)
	for _, q := range quotes {
		if _, ok := index[q.OutcomeLabel]; !ok {
			continue
		}
		byBook[q.BookmakerName] = append(byBook[q.BookmakerName], q)
		if q.SharpnessRank > ranks[q.BookmakerName] {
			ranks[q.BookmakerName] = q.SharpnessRank
		}
	}

	lines := make([]bookLine, 0, len(byBook))
	for name, bq := range byBook {
		ordered := make([]models.BookQuote, len(outcomes))
		covered := 0
		for _, q := range bq {
			i := index[q.OutcomeLabel]
			if ordered[i].BookmakerName == "" || q.ObservedAt.After(ordered[i].ObservedAt) {
				if ordered[i].BookmakerName == "" {
					covered++
				}
				ordered[i] = q
			}
		}
		if covered != len(outcomes) {
			continue
		}
		valid := true
		for _, q := range ordered {
			if q.DecimalOdds <= 1 {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		lines = append(lines, bookLine{name: name, rank: ranks[name], quotes: ordered})
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].rank != lines[j].rank {
			return lines[i].rank > lines[j].rank
		}
		return lines[i].name < lines[j].name
	})
	return lines
}

// isOutlier checks the primary book's fair probabilities against the
// per-outcome book median. Requires at least three books for a meaningful
// spread.
func (d *Devigger) isOutlier(primary *bookLine, lines []bookLine, outcomes []string) bool {
	if len(lines) < 3 {
		return false
	}
	for j := range outcomes {
		column := make([]float64, 0, len(lines))
		for i := range lines {
			column = append(column, lines[i].fairProbs[j])
		}
		med := median(column)
		sd := stdDev(column)
		if sd <= 0 {
			continue
		}
		if abs(primary.fairProbs[j]-med) > d.cfg.OutlierSigma*sd {
			return true
		}
	}
	return false
}

func pricesFromLine(eventID string, outcomes []string, line *bookLine, method models.DevigMethod) []models.FairPrice {
	prices := make([]models.FairPrice, len(outcomes))
	for j, label := range outcomes {
		prices[j] = models.FairPrice{
			EventID:         eventID,
			OutcomeLabel:    label,
			DecimalOdds:     line.quotes[j].DecimalOdds,
			FairProbability: line.fairProbs[j],
			BookmakerName:   line.name,
			SharpnessRank:   line.rank,
			Method:          method,
		}
	}
	return prices
}

// medianPrices builds the consensus fair-price set: the per-outcome median
// of the books' fair probabilities, renormalized to sum to one
func medianPrices(eventID string, outcomes []string, lines []bookLine) []models.FairPrice {
	medProbs := make([]float64, len(outcomes))
	medOdds := make([]float64, len(outcomes))
	sum := 0.0
	for j := range outcomes {
		probs := make([]float64, 0, len(lines))
		odds := make([]float64, 0, len(lines))
		for i := range lines {
			probs = append(probs, lines[i].fairProbs[j])
			odds = append(odds, lines[i].quotes[j].DecimalOdds)
		}
		medProbs[j] = median(probs)
		medOdds[j] = median(odds)
		sum += medProbs[j]
	}

	prices := make([]models.FairPrice, len(outcomes))
	for j, label := range outcomes {
		prices[j] = models.FairPrice{
			EventID:         eventID,
			OutcomeLabel:    label,
			DecimalOdds:     medOdds[j],
			FairProbability: medProbs[j] / sum,
			BookmakerName:   "consensus",
			SharpnessRank:   0,
			Method:          models.DevigMedian,
		}
	}
	return prices
}

// outcomeLabels returns the event's distinct outcome labels in first-seen
// order
func outcomeLabels(quotes []models.BookQuote) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0, 4)
	for _, q := range quotes {
		if _, ok := seen[q.OutcomeLabel]; ok {
			continue
		}
		seen[q.OutcomeLabel] = struct{}{}
		labels = append(labels, q.OutcomeLabel)
	}
	return labels
}

// FreshQuotes filters out quotes older than the freshness window
func FreshQuotes(quotes []models.BookQuote, now time.Time, window time.Duration) []models.BookQuote {
	out := make([]models.BookQuote, 0, len(quotes))
	for _, q := range quotes {
		if now.Sub(q.ObservedAt) <= window {
			out = append(out, q)
		}
	}
	return out
}
