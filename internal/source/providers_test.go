package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

func newSourceCfg(name, baseURL string) config.SourceConfig {
	return config.SourceConfig{
		Name:    name,
		Enabled: true,
		BaseURL: baseURL,
		APIKey:  "sk-test",
	}
}

func testMarket() models.Market {
	return models.Market{
		ID:       "mkt-1",
		Question: "Will the Boston Celtics win the 2027 NBA Finals?",
		Sport:    models.SportNBA,
		EventID:  "evt-1",
		Quote:    models.MarketQuote{MarketID: "mkt-1", OutcomeLabel: "Yes"},
	}
}

func TestForecastCrowdEstimates(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "Token sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"id": "q-2", "title": "Will the Lakers win the 2027 NBA Finals?", "platform": "metaculus",
			 "communityPrediction": {"median": 0.22, "forecasterCount": 90, "updatedAt": "2026-08-25T10:00:00Z"}},
			{"id": "q-1", "title": "Will the Boston Celtics win the 2027 NBA Finals?", "platform": "metaculus",
			 "communityPrediction": {"median": 0.63, "forecasterCount": 120, "updatedAt": "2026-08-25T12:00:00Z"}}
		]}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("forecastCrowd", server.URL)
	client := NewForecastCrowdClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	assert.Equal(t, models.SourceForecastCrowd, client.Key())
	assert.True(t, client.Enabled())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, ests, 1)

	est := ests[0]
	assert.Equal(t, 0.63, est.Probability)
	assert.InDelta(t, 120.0/170.0, est.Weight, 1e-9)
	assert.Equal(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC), est.ObservedAt.UTC())
	assert.True(t, est.MatchValidated)
	require.NotNil(t, est.Detail.Crowd)
	assert.Equal(t, "metaculus", est.Detail.Crowd.Platform)
	assert.Equal(t, 120, est.Detail.Crowd.ForecasterCount)

	// Second call is served from cache
	_, err = client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestForecastCrowdRejectsUnusable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no match", `{"results": [{"id": "q-9", "title": "Bitcoin above 100k by June?", "platform": "metaculus",
			"communityPrediction": {"median": 0.5, "forecasterCount": 10, "updatedAt": ""}}]}`},
		{"resolved", `{"results": [{"id": "q-1", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			"platform": "metaculus", "resolved": true,
			"communityPrediction": {"median": 0.63, "forecasterCount": 120, "updatedAt": ""}}]}`},
		{"no prediction", `{"results": [{"id": "q-1", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			"platform": "metaculus"}]}`},
		{"empty crowd", `{"results": [{"id": "q-1", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			"platform": "metaculus", "communityPrediction": {"median": 0.63, "forecasterCount": 0, "updatedAt": ""}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			cfg := newSourceCfg("forecastCrowd", server.URL)
			client := NewForecastCrowdClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
				NewEstimateCache(time.Minute), cfg, testLogger())

			ests, err := client.Estimates(context.Background(), testMarket())
			require.NoError(t, err)
			assert.Nil(t, ests)
		})
	}
}

func TestCrossPlatformEstimates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "pm-1", "question": "Will the Boston Celtics win the 2027 NBA Finals?", "venue": "polymarket",
			 "liquidity": 30000, "closed": false,
			 "outcomes": [{"label": "Yes", "price": 0.64}, {"label": "No", "price": 0.36}]}
		]`))
	}))
	defer server.Close()

	cfg := newSourceCfg("crossPlatform", server.URL)
	client := NewCrossPlatformClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, ests, 1)

	est := ests[0]
	assert.Equal(t, 0.64, est.Probability)
	assert.InDelta(t, 30000.0/40000.0, est.Weight, 1e-9)
	require.NotNil(t, est.Detail.Market)
	assert.Equal(t, "polymarket", est.Detail.Market.Venue)
	assert.Equal(t, 0.64, est.Detail.Market.Price)
}

func TestCrossPlatformPricesSubjectLabelFromYes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "pm-1", "question": "Will the Boston Celtics win the 2027 NBA Finals?", "venue": "polymarket",
			 "liquidity": 30000, "closed": false,
			 "outcomes": [{"label": "Yes", "price": 0.64}, {"label": "No", "price": 0.36}]}
		]`))
	}))
	defer server.Close()

	cfg := newSourceCfg("crossPlatform", server.URL)
	client := NewCrossPlatformClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	// The venue feed labels the Yes outcome with the question's subject;
	// the sibling's own Yes outcome must still price it
	market := testMarket()
	market.Quote.OutcomeLabel = "Boston Celtics"

	ests, err := client.Estimates(context.Background(), market)
	require.NoError(t, err)
	require.Len(t, ests, 1)
	assert.Equal(t, 0.64, ests[0].Probability)
}

func TestCrossPlatformRejectsClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "pm-1", "question": "Will the Boston Celtics win the 2027 NBA Finals?", "venue": "polymarket",
			 "liquidity": 30000, "closed": true,
			 "outcomes": [{"label": "Yes", "price": 0.64}]}
		]`))
	}))
	defer server.Close()

	cfg := newSourceCfg("crossPlatform", server.URL)
	client := NewCrossPlatformClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Nil(t, ests)
}

func TestLanguageModelEstimates(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		wantWeight float64
	}{
		{"confidence capped", 0.9, 0.5},
		{"confidence floored", 0.02, 0.1},
		{"confidence in band", 0.3, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confidence := tt.confidence
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				var req llmEstimateRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Will the Boston Celtics win the 2027 NBA Finals?", req.Question)
				assert.Equal(t, "Yes", req.Outcome)
				w.Header().Set("Content-Type", "application/json")
				resp := llmEstimateResponse{
					Probability: 0.58,
					Confidence:  confidence,
					Model:       "gpt-4o",
					Reasoning:   strings.Repeat("because ", 60),
				}
				_ = json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()

			cfg := newSourceCfg("languageModel", server.URL)
			client := NewLanguageModelClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
				NewEstimateCache(time.Minute), cfg, testLogger())

			ests, err := client.Estimates(context.Background(), testMarket())
			require.NoError(t, err)
			require.Len(t, ests, 1)

			est := ests[0]
			assert.Equal(t, 0.58, est.Probability)
			assert.InDelta(t, tt.wantWeight, est.Weight, 1e-9)
			assert.True(t, est.MatchValidated)
			require.NotNil(t, est.Detail.Model)
			assert.Equal(t, "gpt-4o", est.Detail.Model.Model)
			assert.LessOrEqual(t, len(est.Detail.Model.Reasoning), reasoningMaxLen)
			assert.Equal(t, confidence, est.Detail.Model.Confidence)
		})
	}
}

func TestLanguageModelRejectsBadProbability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probability": 1.3, "confidence": 0.4, "model": "gpt-4o", "reasoning": ""}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("languageModel", server.URL)
	client := NewLanguageModelClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	_, err := client.Estimates(context.Background(), testMarket())
	var serr *SourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeParse, serr.Code)
}

func TestFinancialProxyEstimates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"instruments": [
			{"symbol": "BOS27FIN", "description": "Boston Celtics to win the 2027 NBA Finals",
			 "impliedProbability": 0.61, "openInterest": 5400, "asOf": "2026-08-25T13:30:00Z"}
		]}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("financialProxy", server.URL)
	client := NewFinancialProxyClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, ests, 1)

	est := ests[0]
	assert.Equal(t, 0.61, est.Probability)
	assert.Equal(t, 1.0, est.Weight)
	assert.Equal(t, time.Date(2026, 8, 25, 13, 30, 0, 0, time.UTC), est.ObservedAt.UTC())
	require.NotNil(t, est.Detail.Proxy)
	assert.Equal(t, "BOS27FIN", est.Detail.Proxy.Instrument)
}

func TestRegulatedExchangeEstimates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markets": [
			{"ticker": "NBAFINALS-27-BOS", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			 "status": "open", "yes_bid": 52, "yes_ask": 56, "volume": 12000}
		]}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("regulatedExchange", server.URL)
	client := NewRegulatedExchangeClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, ests, 1)

	est := ests[0]
	assert.InDelta(t, 0.54, est.Probability, 1e-9)
	assert.InDelta(t, 0.96, est.Weight, 1e-9)
	require.NotNil(t, est.Detail.Market)
	assert.Equal(t, "NBAFINALS-27-BOS", est.Detail.Market.Venue)
}

func TestRegulatedExchangeWideSpreadFloorsWeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markets": [
			{"ticker": "NBAFINALS-27-BOS", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			 "status": "open", "yes_bid": 2, "yes_ask": 97, "volume": 3}
		]}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("regulatedExchange", server.URL)
	client := NewRegulatedExchangeClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	require.Len(t, ests, 1)

	assert.InDelta(t, 0.495, ests[0].Probability, 1e-9)
	assert.Equal(t, 0.1, ests[0].Weight)
}

func TestRegulatedExchangeRejectsNonOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markets": [
			{"ticker": "NBAFINALS-27-BOS", "title": "Will the Boston Celtics win the 2027 NBA Finals?",
			 "status": "settled", "yes_bid": 52, "yes_ask": 56, "volume": 12000}
		]}`))
	}))
	defer server.Close()

	cfg := newSourceCfg("regulatedExchange", server.URL)
	client := NewRegulatedExchangeClient(NewRateLimitedHTTPClient(testHTTPConfig(), cfg, testLogger()),
		NewEstimateCache(time.Minute), cfg, testLogger())

	ests, err := client.Estimates(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Nil(t, ests)
}

func TestDisabledProvidersRejectEstimates(t *testing.T) {
	cache := NewEstimateCache(time.Minute)
	cfg := config.SourceConfig{Name: "forecastCrowd", Enabled: false}

	providers := []Provider{
		NewForecastCrowdClient(nil, cache, cfg, testLogger()),
		NewCrossPlatformClient(nil, cache, cfg, testLogger()),
		NewLanguageModelClient(nil, cache, cfg, testLogger()),
		NewFinancialProxyClient(nil, cache, cfg, testLogger()),
		NewRegulatedExchangeClient(nil, cache, cfg, testLogger()),
	}
	for _, p := range providers {
		assert.False(t, p.Enabled())
		_, err := p.Estimates(context.Background(), testMarket())
		var serr *SourceError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, ErrCodeUnavailable, serr.Code)
	}
}
