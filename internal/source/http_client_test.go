package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testHTTPConfig() config.HTTPClientConfig {
	return config.HTTPClientConfig{
		TimeoutSeconds:     5,
		MaxRetries:         2,
		RetryWaitMinMs:     1,
		RetryWaitMaxMs:     5,
		RateLimitPerSecond: 500,
		CircuitBreakerMax:  3,
	}
}

func testSourceConfig(name string) config.SourceConfig {
	return config.SourceConfig{
		Name:    name,
		Enabled: true,
	}
}

func TestHTTPClientSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), testSourceConfig("sportsOdds"), testLogger())
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, client.Healthy())
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), testSourceConfig("forecastCrowd"), testLogger())
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.True(t, client.Healthy())
}

func TestHTTPClientCircuitBreaker(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreakerMax = 2
	client := NewRateLimitedHTTPClient(cfg, testSourceConfig("crossPlatform"), testLogger())
	defer client.Close()

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), server.URL, nil)
		require.Error(t, err)
	}
	assert.False(t, client.Healthy())
	seen := atomic.LoadInt32(&requests)

	// Breaker open: the next call must not reach the server
	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)

	var serr *SourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeUnavailable, serr.Code)
	assert.Contains(t, serr.Message, "circuit breaker open")
	assert.Equal(t, seen, atomic.LoadInt32(&requests))

	client.Reset()
	assert.True(t, client.Healthy())
}

func TestHTTPClientRateLimitCooldown(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), testSourceConfig("regulatedExchange"), testLogger())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)

	var serr *SourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeRateLimited, serr.Code)
	require.NotNil(t, serr.RetryAfter)
	assert.True(t, serr.RetryAfter.After(time.Now()))

	until, active := client.Cooldown()
	assert.True(t, active)
	assert.True(t, until.After(time.Now()))
	assert.False(t, client.Healthy())

	// Cooling down: the next call must not reach the server
	_, err = client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeRateLimited, serr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestHTTPClientAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), testSourceConfig("financialProxy"), testLogger())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)

	var serr *SourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrCodeAuth, serr.Code)
}

func TestHTTPClientHeadersApplied(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedHTTPClient(testHTTPConfig(), testSourceConfig("languageModel"), testLogger())
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL, map[string]string{"Authorization": "Bearer token123"})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer token123", gotAuth)
}

func TestSourceErrorFormat(t *testing.T) {
	base := NewSourceError("sportsOdds", ErrCodeTimeout, "deadline exceeded", context.DeadlineExceeded)
	assert.Equal(t, "sportsOdds: timeout: deadline exceeded (context deadline exceeded)", base.Error())
	assert.ErrorIs(t, base, context.DeadlineExceeded)

	bare := NewSourceError("forecastCrowd", ErrCodeParse, "bad json", nil)
	assert.Equal(t, "forecastCrowd: parse: bad json", bare.Error())

	deg := base.Degradation()
	assert.Equal(t, ErrCodeTimeout, deg.Code)
	assert.Equal(t, "deadline exceeded", deg.Message)
}
