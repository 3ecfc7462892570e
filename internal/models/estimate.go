package models

import (
	"fmt"
	"time"
)

// SourceKey identifies an independent probability provider
type SourceKey string

const (
	SourceForecastCrowd     SourceKey = "forecastCrowd"
	SourceCrossPlatform     SourceKey = "crossPlatform"
	SourceLanguageModel     SourceKey = "languageModel"
	SourceSportsOdds        SourceKey = "sportsOdds"
	SourceFinancialProxy    SourceKey = "financialProxy"
	SourceRegulatedExchange SourceKey = "regulatedExchange"
)

// IsHard reports whether the source is a hard data source (live odds,
// financial proxies, regulated exchange prices) as opposed to crowd or
// model conjecture
func (k SourceKey) IsHard() bool {
	switch k {
	case SourceSportsOdds, SourceFinancialProxy, SourceRegulatedExchange:
		return true
	}
	return false
}

// CrowdDetail describes a forecaster-crowd estimate
type CrowdDetail struct {
	Platform        string `json:"platform"`
	ForecasterCount int    `json:"forecaster_count"`
}

// MarketDetail describes a cross-platform or regulated-exchange price
type MarketDetail struct {
	Venue string  `json:"venue"`
	Price float64 `json:"price"`
}

// ModelDetail describes a language-model estimate
type ModelDetail struct {
	Model      string  `json:"model"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}

// BooksDetail describes a sportsbook-derived estimate
type BooksDetail struct {
	BookCount int     `json:"book_count"`
	BestBook  string  `json:"best_book,omitempty"`
	AvgVig    float64 `json:"avg_vig"`
}

// ProxyDetail describes a financial-market proxy estimate
type ProxyDetail struct {
	Instrument string `json:"instrument"`
}

// SourceDetail carries per-source metadata. Exactly one variant is set,
// matching the estimate's SourceKey.
type SourceDetail struct {
	Crowd  *CrowdDetail  `json:"crowd,omitempty"`
	Market *MarketDetail `json:"market,omitempty"`
	Model  *ModelDetail  `json:"model,omitempty"`
	Books  *BooksDetail  `json:"books,omitempty"`
	Proxy  *ProxyDetail  `json:"proxy,omitempty"`
}

// Summary renders a short human-readable description of the detail
func (d SourceDetail) Summary() string {
	switch {
	case d.Crowd != nil:
		return fmt.Sprintf("%s community (%d forecasters)", d.Crowd.Platform, d.Crowd.ForecasterCount)
	case d.Market != nil:
		return fmt.Sprintf("%s @ %.3f", d.Market.Venue, d.Market.Price)
	case d.Model != nil:
		return fmt.Sprintf("%s (confidence %.2f)", d.Model.Model, d.Model.Confidence)
	case d.Books != nil:
		return fmt.Sprintf("%d books, avg vig %.1f%%", d.Books.BookCount, d.Books.AvgVig*100)
	case d.Proxy != nil:
		return fmt.Sprintf("proxy %s", d.Proxy.Instrument)
	}
	return ""
}

// SourceEstimate is one provider's probability estimate for a market.
// Estimates older than the configured TTL are stale and excluded from
// aggregation.
type SourceEstimate struct {
	MarketID       string       `json:"market_id" validate:"required"`
	SourceKey      SourceKey    `json:"source_key" validate:"required,oneof=forecastCrowd crossPlatform languageModel sportsOdds financialProxy regulatedExchange"`
	Probability    float64      `json:"probability" validate:"gte=0,lte=1"`
	Weight         float64      `json:"weight" validate:"gte=0"`
	ObservedAt     time.Time    `json:"observed_at" validate:"required"`
	Detail         SourceDetail `json:"detail"`
	MatchQuality   float64      `json:"match_quality"`
	MatchValidated bool         `json:"match_validated"`
}

// IsStale reports whether the estimate is older than the given TTL
func (e *SourceEstimate) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.ObservedAt) > ttl
}

// IsHard reports whether the estimate comes from a hard data source
func (e *SourceEstimate) IsHard() bool {
	return e.SourceKey.IsHard()
}
