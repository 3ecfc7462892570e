package source

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Language-model estimates are conjecture, not observation. Their own
// weight is clamped so that even a maximally confident model cannot
// dominate aggregation or escape the grade-D cap on model-only signals.
const (
	languageModelWeightFloor = 0.1
	languageModelWeightCap   = 0.5
	reasoningMaxLen          = 280
)

// LanguageModelClient asks an LLM estimate service for a probability with
// reasoning attached
type LanguageModelClient struct {
	httpClient *RateLimitedHTTPClient
	cache      *EstimateCache
	baseURL    string
	apiKey     string
	enabled    bool
	cacheTTL   time.Duration
	log        *logrus.Logger
}

// llmEstimateRequest is the estimate service request body
type llmEstimateRequest struct {
	Question   string `json:"question"`
	Outcome    string `json:"outcome"`
	EventStart string `json:"event_start,omitempty"`
}

// llmEstimateResponse is the estimate service response body
type llmEstimateResponse struct {
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
	Model       string  `json:"model"`
	Reasoning   string  `json:"reasoning"`
}

// NewLanguageModelClient creates a language model adapter
func NewLanguageModelClient(httpClient *RateLimitedHTTPClient, cache *EstimateCache, cfg config.SourceConfig, log *logrus.Logger) *LanguageModelClient {
	return &LanguageModelClient{
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
func (c *LanguageModelClient) Key() models.SourceKey {
	return models.SourceLanguageModel
}

// Enabled returns whether this provider is enabled
func (c *LanguageModelClient) Enabled() bool {
	return c.enabled
}

// Estimates asks the model for a probability on the market's outcome. Model
// estimates are the most expensive to produce and the least trusted, so they
// cache the longest.
func (c *LanguageModelClient) Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error) {
	if !c.enabled {
		return nil, NewSourceError(c.Key(), ErrCodeUnavailable, "provider disabled", nil)
	}
	if cached, ok := c.cache.Get(c.Key(), market.ID); ok {
		return cached, nil
	}

	reqBody := llmEstimateRequest{
		Question: market.Question,
		Outcome:  market.Quote.OutcomeLabel,
	}
	if !market.EventStart.IsZero() {
		reqBody.EventStart = market.EventStart.Format(time.RFC3339)
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to encode estimate request", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	resp, err := c.httpClient.Post(ctx, c.baseURL+"/v1/estimate", bytes.NewReader(payload), headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body llmEstimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "failed to parse estimate response", err)
	}
	if body.Probability < 0 || body.Probability > 1 {
		return nil, NewSourceError(c.Key(), ErrCodeParse, "probability out of range", nil)
	}

	weight := body.Confidence
	if weight < languageModelWeightFloor {
		weight = languageModelWeightFloor
	}
	if weight > languageModelWeightCap {
		weight = languageModelWeightCap
	}

	reasoning := body.Reasoning
	if len(reasoning) > reasoningMaxLen {
		reasoning = reasoning[:reasoningMaxLen]
	}

	c.log.WithFields(logrus.Fields{
		"source":      c.Key(),
		"market_id":   market.ID,
		"probability": body.Probability,
		"confidence":  body.Confidence,
		"model":       body.Model,
	}).Debug("Language model estimate received")

	out := []models.SourceEstimate{{
		MarketID:    market.ID,
		SourceKey:   c.Key(),
		Probability: body.Probability,
		Weight:      weight,
		ObservedAt:  time.Now(),
		Detail: models.SourceDetail{
			Model: &models.ModelDetail{
				Model:      body.Model,
				Reasoning:  reasoning,
				Confidence: body.Confidence,
			},
		},
		MatchQuality:   1,
		MatchValidated: true,
	}}
	c.cache.Set(c.Key(), market.ID, out, c.cacheTTL)
	return out, nil
}
