package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// FinancialProxyClient reads probabilities implied by financial instruments
// tied to event outcomes (futures and binary contracts on the event). Hard
// prices from traded instruments, so no additional weighting is applied.
type FinancialProxyClient struct {
	httpClient *RateLimitedHTTPClient
	cache      *EstimateCache
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	log        *logrus.Logger
}

// proxyInstrument is one instrument from the financial proxy API
type proxyInstrument struct {
	Symbol             string  `json:"symbol"`
	Description        string  `json:"description"`
	ImpliedProbability float64 `json:"impliedProbability"`
	OpenInterest       float64 `json:"openInterest"`
	AsOf               string  `json:"asOf"`
}

type proxyResponse struct {
	Instruments []proxyInstrument `json:"instruments"`
}

// NewFinancialProxyClient creates a financial proxy adapter
func NewFinancialProxyClient(httpClient *RateLimitedHTTPClient, cache *EstimateCache, cfg config.SourceConfig, log *logrus.Logger) *FinancialProxyClient {
	return &FinancialProxyClient{
		httpClient: httpClient,
		cache:      cache,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		enabled:    cfg.Enabled,
		cacheTTL:   cfg.CacheTTL(),
		log:        log,
	}
}

// Key returns the provider's source key
func (c *FinancialProxyClient) Key() models.SourceKey {
	return models.SourceFinancialProxy
}

// Enabled returns whether this provider is enabled
func (c *FinancialProxyClient) Enabled() bool {
	return c.enabled
}

// Estimates finds an instrument referencing the market's outcome and reads
// its implied probability
func (c *FinancialProxyClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if cached, ok := c.cache.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/v1/instruments?underlying=%s", c.baseURL, url.QueryEscape(market.Question))
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	resp, err := c.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse instrument response", err)
	}

	est, ok := c.convert(market, body.Instruments)
	if !ok {
		c.log.WithFields(logrus.Fields{
			"source":    c.Key(),
			"market_id": market.ID,
		}).Debug("No instrument matched market")
		return nil, nil
	}

	out := []models.SourceEstimate{est}
	c.cache.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}

func (c *FinancialProxyClient) convert(market models.Market, instruments []proxyInstrument) (models.SourceEstimate, bool) {
	descriptions := make([]string, len(instruments))
	for i, inst := range instruments {
		descriptions[i] = inst.Description
	}
	idx, quality := BestMatch(market.Question+" "+market.Quote.OutcomeLabel, descriptions)
	if idx < 0 || quality < 0.5 {
		return models.SourceEstimate{}, false
	}

	inst := instruments[idx]
	if inst.ImpliedProbability < 0 || inst.ImpliedProbability > 1 {
		return models.SourceEstimate{}, false
	}

	observedAt := time.Now()
	if at, err := time.Parse(time.RFC3339, inst.AsOf); err == nil {
		observedAt = at
	}

	metrics.RecordSourceMatchQuality(string(c.Key()), quality)

	return models.SourceEstimate{
		MarketID:    market.ID,
		SourceKey:   c.Key(),
		Probability: inst.ImpliedProbability,
		Weight:      1,
		ObservedAt:  observedAt,
		Detail: models.SourceDetail{
			Proxy: &models.ProxyDetail{
				Instrument: inst.Symbol,
			},
		},
		MatchQuality:   quality,
		MatchValidated: quality >= MatchValidatedThreshold,
	}, true
}
