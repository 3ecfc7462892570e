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

// liquidityRef is the pool size at which a sibling market's own weight
// reaches half strength; thin markets barely count
const liquidityRef = 10000.0

// CrossPlatformClient reads prices for the same question listed on a sibling
// prediction market. Prices there are already probabilities in [0,1].
type CrossPlatformClient struct {
	httpClient *RateLimitedHTTPClient
	cache      *EstimateCache
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	log        *logrus.Logger
}

// siblingMarket is one market listing from the sibling venue API
type siblingMarket struct {
	ID        string  `json:"id"`
	Question  string  `json:"question"`
	Venue     string  `json:"venue"`
	Liquidity float64 `json:"liquidity"`
	Closed    bool    `json:"closed"`
	Outcomes  []struct {
		Label string  `json:"label"`
		Price float64 `json:"price"`
	} `json:"outcomes"`
}

// NewCrossPlatformClient creates a cross-platform adapter
func NewCrossPlatformClient(httpClient *RateLimitedHTTPClient, cache *EstimateCache, cfg config.SourceConfig, log *logrus.Logger) *CrossPlatformClient {
	return &CrossPlatformClient{
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
func (c *CrossPlatformClient) Key() models.SourceKey {
	return models.SourceCrossPlatform
}

// Enabled returns whether this provider is enabled
func (c *CrossPlatformClient) Enabled() bool {
	return c.enabled
}

// Estimates finds the market on the sibling venue and reads the matching
// outcome's price as a probability estimate
func (c *CrossPlatformClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if cached, ok := c.cache.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/markets?q=%s&active=true", c.baseURL, url.QueryEscape(market.Question))
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["X-Api-Key"] = c.apiKey
	}

	resp, err := c.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listings []siblingMarket
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse sibling market response", err)
	}

	est, ok := c.convert(market, listings)
	if !ok {
		c.log.WithFields(logrus.Fields{
			"source":    c.Key(),
			"market_id": market.ID,
		}).Debug("No sibling market matched")
		return nil, nil
	}

	out := []models.SourceEstimate{est}
	c.cache.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}

func (c *CrossPlatformClient) convert(market models.Market, listings []siblingMarket) (models.SourceEstimate, bool) {
	questions := make([]string, len(listings))
	for i, l := range listings {
		questions[i] = l.Question
	}
	idx, quality := BestMatch(market.Question, questions)
	if idx < 0 || quality < 0.5 {
		return models.SourceEstimate{}, false
	}

	listing := listings[idx]
	if listing.Closed || len(listing.Outcomes) == 0 {
		return models.SourceEstimate{}, false
	}

	// The estimate must price our outcome, not just the same question
	price := -1.0
	for _, o := range listing.Outcomes {
		if MatchQuality(market.Quote.OutcomeLabel, o.Label) >= MatchValidatedThreshold {
			price = o.Price
			break
		}
	}
	if price < 0 {
		// Sibling venues phrase binary markets as Yes/No on the same
		// question, so the Yes outcome prices a subject-labelled quote
		for _, o := range listing.Outcomes {
			if NormalizeLabel(o.Label) == "yes" {
				price = o.Price
				break
			}
		}
	}
	if price < 0 && market.Quote.OutcomeLabel == "" {
		price = listing.Outcomes[0].Price
	}
	if price < 0 || price > 1 {
		return models.SourceEstimate{}, false
	}

	metrics.RecordSourceMatchQuality(string(c.Key()), quality)

	return models.SourceEstimate{
		MarketID:    market.ID,
		SourceKey:   c.Key(),
		Probability: price,
		Weight:      listing.Liquidity / (listing.Liquidity + liquidityRef),
		ObservedAt:  time.Now(),
		Detail: models.SourceDetail{
			Market: &models.MarketDetail{
				Venue: listing.Venue,
				Price: price,
			},
		},
		MatchQuality:   quality,
		MatchValidated: quality >= MatchValidatedThreshold,
	}, true
}
