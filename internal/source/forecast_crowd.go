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

// forecasterCountRef is the crowd size at which an estimate's own weight
// reaches half strength; tiny crowds barely count
const forecasterCountRef = 50.0

// ForecastCrowdClient reads aggregated forecaster-community predictions.
// Crowd medians move slowly, so estimates cache well between builds.
type ForecastCrowdClient struct {
	httpClient *RateLimitedHTTPClient
	cache      *EstimateCache
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	log        *logrus.Logger
}

// crowdQuestion is one question from the crowd forecast API
type crowdQuestion struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Platform   string  `json:"platform"`
	Resolved   bool    `json:"resolved"`
	Prediction *struct {
		Median          float64 `json:"median"`
		ForecasterCount int     `json:"forecasterCount"`
		UpdatedAt       string  `json:"updatedAt"`
	} `json:"communityPrediction"`
}

type crowdResponse struct {
	Results []crowdQuestion `json:"results"`
}

// NewForecastCrowdClient creates a forecast crowd adapter
func NewForecastCrowdClient(httpClient *RateLimitedHTTPClient, cache *EstimateCache, cfg config.SourceConfig, log *logrus.Logger) *ForecastCrowdClient {
	return &ForecastCrowdClient{
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
func (c *ForecastCrowdClient) Key() models.SourceKey {
	return models.SourceForecastCrowd
}

// Enabled returns whether this provider is enabled
func (c *ForecastCrowdClient) Enabled() bool {
	return c.enabled
}

// Estimates searches the crowd platform for the market's question and turns
// the community median into a source estimate
func (c *ForecastCrowdClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if cached, ok := c.cache.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/v1/questions?search=%s&status=open", c.baseURL, url.QueryEscape(market.Question))
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Token " + c.apiKey
	}

	resp, err := c.httpClient.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body crowdResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse crowd response", err)
	}

	est, ok := c.convert(market, body.Results)
	if !ok {
		c.log.WithFields(logrus.Fields{
			"source":    c.Key(),
			"market_id": market.ID,
		}).Debug("No crowd question matched market")
		return nil, nil
	}

	out := []models.SourceEstimate{est}
	c.cache.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}

// convert picks the best-matching open question and builds the estimate
func (c *ForecastCrowdClient) convert(market models.Market, questions []crowdQuestion) (models.SourceEstimate, bool) {
	titles := make([]string, len(questions))
	for i, q := range questions {
		titles[i] = q.Title
	}
	idx, quality := BestMatch(market.Question, titles)
	if idx < 0 || quality < 0.5 {
		return models.SourceEstimate{}, false
	}

	q := questions[idx]
	if q.Resolved || q.Prediction == nil || q.Prediction.ForecasterCount <= 0 {
		return models.SourceEstimate{}, false
	}
	if q.Prediction.Median < 0 || q.Prediction.Median > 1 {
		return models.SourceEstimate{}, false
	}

	observedAt := time.Now()
	if at, err := time.Parse(time.RFC3339, q.Prediction.UpdatedAt); err == nil {
		observedAt = at
	}

	count := q.Prediction.ForecasterCount
	metrics.RecordSourceMatchQuality(string(c.Key()), quality)

	return models.SourceEstimate{
		MarketID:    market.ID,
		SourceKey:   c.Key(),
		Probability: q.Prediction.Median,
		Weight:      float64(count) / (float64(count) + forecasterCountRef),
		ObservedAt:  observedAt,
		Detail: models.SourceDetail{
			Crowd: &models.CrowdDetail{
				Platform:        q.Platform,
				ForecasterCount: count,
			},
		},
		MatchQuality:   quality,
		MatchValidated: quality >= MatchValidatedThreshold,
	}, true
}
