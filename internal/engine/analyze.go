package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/edge"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/source"
)

// AnalysisStatus classifies the outcome of analyzing one market
type AnalysisStatus string

const (
	// AnalysisOK means an edge signal was computed
	AnalysisOK AnalysisStatus = "ok"
	// AnalysisInsufficient means no usable source estimates remained
	AnalysisInsufficient AnalysisStatus = "insufficient_data"
	// AnalysisExcluded means the market was dropped before analysis as
	// started, expired or degenerately priced
	AnalysisExcluded AnalysisStatus = "excluded"
)

// MarketAnalysis is the per-market result of an on-demand analysis
type MarketAnalysis struct {
	MarketID string                      `json:"market_id"`
	Question string                      `json:"question,omitempty"`
	Status   AnalysisStatus              `json:"status"`
	Signal   *models.EdgeSignal          `json:"signal,omitempty"`
	Degraded []models.SourceDegradation  `json:"degraded,omitempty"`
}

// AnalyzeMarket analyzes a single venue market by id outside the build
// cycle. The snapshot is not touched.
func (e *Engine) AnalyzeMarket(ctx context.Context, marketID string) (*MarketAnalysis, error) {
	markets, err := e.feed.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch venue markets: %w", err)
	}
	for i := range markets {
		if markets[i].ID == marketID {
			analysis := e.analyzeOne(ctx, markets[i], time.Now().UTC())
			return &analysis, nil
		}
	}
	return nil, fmt.Errorf("market %s: %w", marketID, models.ErrNotFound)
}

// AnalyzeBatch analyzes up to maxMarkets venue markets in one pass and
// returns a per-market status in feed order. Zero or an out-of-range
// maxMarkets falls back to the build cap.
func (e *Engine) AnalyzeBatch(ctx context.Context, maxMarkets int) ([]MarketAnalysis, error) {
	markets, err := e.feed.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch venue markets: %w", err)
	}
	if maxMarkets <= 0 || maxMarkets > e.cfg.Build.MaxMarkets {
		maxMarkets = e.cfg.Build.MaxMarkets
	}
	if len(markets) > maxMarkets {
		markets = markets[:maxMarkets]
	}
	return e.analyzeAll(ctx, markets, time.Now().UTC()), nil
}

// analyzeAll fans markets out over a bounded worker pool. Results land at
// their market's index, so output order matches input order regardless of
// completion order.
func (e *Engine) analyzeAll(ctx context.Context, markets []models.Market, now time.Time) []MarketAnalysis {
	if len(markets) == 0 {
		return nil
	}

	workers := e.cfg.Build.SourceConcurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(markets) {
		workers = len(markets)
	}

	out := make([]MarketAnalysis, len(markets))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = e.analyzeOne(ctx, markets[i], now)
			}
		}()
	}
	for i := range markets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// analyzeOne runs the full per-market pipeline: exclusion filter, estimate
// collection across providers, aggregation into an edge signal
func (e *Engine) analyzeOne(ctx context.Context, market models.Market, now time.Time) MarketAnalysis {
	analysis := MarketAnalysis{MarketID: market.ID, Question: market.Question}

	if reason := excludeReason(&market, now); reason != "" {
		metrics.RecordMarketExcluded()
		e.log.WithFields(logrus.Fields{
			"market_id": market.ID,
			"reason":    reason,
		}).Debug("Market excluded from analysis")
		analysis.Status = AnalysisExcluded
		return analysis
	}

	started := time.Now()
	estimates, degraded := e.collectEstimates(ctx, market)
	analysis.Degraded = degraded

	var inputsHash string
	if e.signals != nil && len(estimates) > 0 {
		inputsHash = edge.InputsHash(market.Quote, estimates)
		if cached, found := e.signals.Get(market.ID, inputsHash); found {
			metrics.RecordMarketScanned(time.Since(started).Seconds())
			analysis.Status = AnalysisOK
			analysis.Signal = cached
			return analysis
		}
	}

	signal, err := e.aggregator.Aggregate(market.Quote, estimates, market.Sport, now)
	metrics.RecordMarketScanned(time.Since(started).Seconds())
	if err != nil {
		if !errors.Is(err, models.ErrInsufficientData) {
			e.log.WithFields(logrus.Fields{
				"market_id": market.ID,
				"error":     err.Error(),
			}).Warn("Market aggregation failed")
		}
		analysis.Status = AnalysisInsufficient
		return analysis
	}

	if e.signals != nil && inputsHash != "" {
		e.signals.Set(market.ID, inputsHash, signal)
	}
	metrics.RecordEdgeFound(string(signal.QualityGrade), signal.QualityScore)
	e.buildLog.LogMarketAnalysis(market.ID, len(estimates), len(degraded), signal.Divergence)
	analysis.Status = AnalysisOK
	analysis.Signal = signal
	return analysis
}

// excludeReason reports why a market is skipped before analysis, empty when
// it qualifies
func excludeReason(market *models.Market, now time.Time) string {
	if market.Started(now) {
		return "event started"
	}
	if !market.EndDate.IsZero() && market.EndDate.Before(now) {
		return "market expired"
	}
	if market.Quote.ImpliedProbability <= 0 || market.Quote.ImpliedProbability >= 1 {
		return "degenerate price"
	}
	return ""
}

// collectEstimates queries every enabled provider for the market. Provider
// failures degrade that source only; estimates from the rest still count.
func (e *Engine) collectEstimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, []models.SourceDegradation) {
	var estimates []models.SourceEstimate
	var degraded []models.SourceDegradation

	for _, provider := range e.providers {
		if !provider.Enabled() {
			continue
		}
		ests, err := provider.Estimates(ctx, market)
		if err != nil {
			d := degradationFor(provider.Key(), err)
			degraded = append(degraded, d)
			e.buildLog.LogSourceError(string(d.Source), market.ID, d.Code, d.Message)
			continue
		}
		estimates = append(estimates, ests...)
	}
	return estimates, degraded
}

// degradationFor converts a provider failure into build metadata, keeping
// the typed code and retry hint when the error carries them
func degradationFor(key models.SourceKey, err error) models.SourceDegradation {
	var srcErr *source.SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Degradation()
	}
	return models.SourceDegradation{
		Source:  key,
		Code:    source.ErrCodeUnavailable,
		Message: err.Error(),
	}
}
