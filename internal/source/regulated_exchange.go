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

// RegulatedExchangeClient reads yes-contract prices from a regulated event
// exchange. The bid/ask mid is the probability; a wide spread cuts the
// estimate's own weight since the mid of an untraded book means little.
type RegulatedExchangeClient struct {
	httpClient *RateLimitedHTTPClient
	cache      *EstimateCache
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	log        *logrus.Logger
}

// exchangeMarket is one market from the exchange API; prices are in cents
type exchangeMarket struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
	Status string `json:"status"`
	YesBid int    `json:"yes_bid"`
	YesAsk int    `json:"yes_ask"`
	Volume int    `json:"volume"`
}

type exchangeResponse struct {
	Markets []exchangeMarket `json:"markets"`
}

// NewRegulatedExchangeClient creates a regulated exchange adapter
func NewRegulatedExchangeClient(httpClient *RateLimitedHTTPClient, cache *EstimateCache, cfg config.SourceConfig, log *logrus.Logger) *RegulatedExchangeClient {
	return &RegulatedExchangeClient{
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
func (c *RegulatedExchangeClient) Key() models.SourceKey {
	return models.SourceRegulatedExchange
}

// Enabled returns whether this provider is enabled
func (c *RegulatedExchangeClient) Enabled() bool {
	return c.enabled
}

// Estimates finds the market on the exchange and reads the yes-contract mid
func (c *RegulatedExchangeClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if cached, ok := c.cache.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/trade-api/v2/markets?status=open&search=%s", c.baseURL, url.QueryEscape(market.Question))
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	resp, err := c.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse exchange response", err)
	}

	est, ok := c.convert(market, body.Markets)
	if !ok {
		c.log.WithFields(logrus.Fields{
			"source":    c.Key(),
			"market_id": market.ID,
		}).Debug("No exchange market matched")
		return nil, nil
	}

	out := []models.SourceEstimate{est}
	c.cache.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}

func (c *RegulatedExchangeClient) convert(market models.Market, listings []exchangeMarket) (models.SourceEstimate, bool) {
	titles := make([]string, len(listings))
	for i, l := range listings {
		titles[i] = l.Title
	}
	idx, quality := BestMatch(market.Question, titles)
	if idx < 0 || quality < 0.5 {
		return models.SourceEstimate{}, false
	}

	listing := listings[idx]
	if listing.Status != "open" || listing.YesBid <= 0 || listing.YesAsk <= 0 || listing.YesAsk > 100 {
		return models.SourceEstimate{}, false
	}
	if listing.YesAsk < listing.YesBid {
		return models.SourceEstimate{}, false
	}

	mid := float64(listing.YesBid+listing.YesAsk) / 2 / 100
	spread := float64(listing.YesAsk-listing.YesBid) / 100
	weight := 1 - spread
	if weight < 0.1 {
		weight = 0.1
	}

	metrics.RecordSourceMatchQuality(string(c.Key()), quality)

	return models.SourceEstimate{
		MarketID:    market.ID,
		SourceKey:   c.Key(),
		Probability: mid,
		Weight:      weight,
		ObservedAt:  time.Now(),
		Detail: models.SourceDetail{
			Market: &models.MarketDetail{
				Venue: listing.Ticker,
				Price: mid,
			},
		},
		MatchQuality:   quality,
		MatchValidated: quality >= MatchValidatedThreshold,
	}, true
}
