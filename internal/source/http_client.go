package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// RateLimitedHTTPClient wraps retryablehttp.Client with a token-bucket rate
// limiter, a consecutive-failure circuit breaker and Retry-After cooldown
// tracking. One client per provider; state is safe for concurrent use.
type RateLimitedHTTPClient struct {
	client     *retryablehttp.Client
	limiter    *rate.Limiter
	source     models.SourceKey
	breakerMax int
	log        *logrus.Logger
	audit      *applogger.AuditLogger

	mu            sync.Mutex
	consecutive   int
	open          bool
	cooldownUntil time.Time
	lastErr       error
}

// NewRateLimitedHTTPClient creates a client for one provider. Per-source
// timeout and rate limit override the shared HTTP config when set.
func NewRateLimitedHTTPClient(shared config.HTTPClientConfig, src config.SourceConfig, log *logrus.Logger) *RateLimitedHTTPClient {
	timeout := shared.Timeout()
	if src.TimeoutSeconds > 0 {
		timeout = src.Timeout()
	}
	limit := shared.RateLimitPerSecond
	if src.RateLimitPerSecond > 0 {
		limit = src.RateLimitPerSecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = timeout
	retryClient.RetryMax = shared.MaxRetries
	retryClient.RetryWaitMin = time.Duration(shared.RetryWaitMinMs) * time.Millisecond
	retryClient.RetryWaitMax = time.Duration(shared.RetryWaitMaxMs) * time.Millisecond
	retryClient.CheckRetry = retryPolicy()
	retryClient.Logger = nil

	return &RateLimitedHTTPClient{
		client:     retryClient,
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
		source:     models.SourceKey(src.Name),
		breakerMax: shared.CircuitBreakerMax,
		log:        log,
		audit:      applogger.NewAuditLogger(log),
	}
}

// Do executes an HTTP request through the rate limiter and circuit breaker.
// Non-2xx statuses the retry policy gave up on are mapped to SourceErrors
// here so adapters only deal with success bodies.
func (c *RateLimitedHTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.gate(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, NewSourceError(c.source, ErrCodeTimeout, "rate limiter wait aborted", err)
	}

	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, NewSourceError(c.source, ErrCodeUnavailable, "failed to wrap request", err)
	}

	start := time.Now()
	resp, err := c.client.Do(rreq)
	metrics.RecordSourceLatency(string(c.source), time.Since(start).Seconds())

	if err != nil {
		c.recordFailure(err)
		code := ErrCodeUnavailable
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
			status = "timeout"
		}
		metrics.RecordSourceRequest(string(c.source), status)
		return nil, NewSourceError(c.source, code, "request failed", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := c.enterCooldown(resp)
		resp.Body.Close()
		metrics.RecordSourceRequest(string(c.source), "rate_limited")
		serr := NewSourceError(c.source, ErrCodeRateLimited, "rate limit exceeded", nil)
		serr.RetryAfter = &retryAfter
		return nil, serr

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		c.recordFailure(nil)
		metrics.RecordSourceRequest(string(c.source), "error")
		return nil, NewSourceError(c.source, ErrCodeAuth, "authentication rejected", nil)

	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.recordFailure(nil)
		metrics.RecordSourceRequest(string(c.source), "error")
		return nil, NewSourceError(c.source, ErrCodeUnavailable,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	c.recordSuccess()
	metrics.RecordSourceRequest(string(c.source), "success")
	return resp, nil
}

// Get executes a GET request with optional headers
func (c *RateLimitedHTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewSourceError(c.source, ErrCodeUnavailable, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

// Post executes a POST request with a JSON body
func (c *RateLimitedHTTPClient) Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, NewSourceError(c.source, ErrCodeUnavailable, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

// gate rejects calls while the breaker is open or a rate-limit cooldown is
// in effect
func (c *RateLimitedHTTPClient) gate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !c.cooldownUntil.IsZero() {
		if now.Before(c.cooldownUntil) {
			retryAfter := c.cooldownUntil
			serr := NewSourceError(c.source, ErrCodeRateLimited, "cooling down after rate limit", nil)
			serr.RetryAfter = &retryAfter
			return serr
		}
		c.cooldownUntil = time.Time{}
	}
	if c.open {
		return NewSourceError(c.source, ErrCodeUnavailable,
			fmt.Sprintf("circuit breaker open after %d consecutive failures", c.consecutive), c.lastErr)
	}
	return nil
}

func (c *RateLimitedHTTPClient) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutive++
	if err != nil {
		c.lastErr = err
	}
	if !c.open && c.breakerMax > 0 && c.consecutive >= c.breakerMax {
		c.open = true
		metrics.RecordSourceBreakerTrip(string(c.source))
		lastErr := ""
		if c.lastErr != nil {
			lastErr = c.lastErr.Error()
		}
		c.audit.LogSourceCircuitBreaker(string(c.source), c.consecutive, lastErr)
	}
}

func (c *RateLimitedHTTPClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		c.log.WithField("source", c.source).Info("Source circuit breaker closed")
	}
	c.consecutive = 0
	c.open = false
	c.lastErr = nil
}

// enterCooldown parses Retry-After and suspends the client until it passes.
// A missing or malformed header defaults to 30 seconds.
func (c *RateLimitedHTTPClient) enterCooldown(resp *http.Response) time.Time {
	wait := 30 * time.Second
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				wait = d
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownUntil = time.Now().Add(wait)
	c.log.WithFields(logrus.Fields{
		"source":         c.source,
		"cooldown_until": c.cooldownUntil.Format(time.RFC3339),
	}).Warn("Source rate limited, entering cooldown")
	return c.cooldownUntil
}

// Cooldown returns the active rate-limit cooldown deadline, if any
func (c *RateLimitedHTTPClient) Cooldown() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cooldownUntil.IsZero() || time.Now().After(c.cooldownUntil) {
		return time.Time{}, false
	}
	return c.cooldownUntil, true
}

// Healthy reports whether the breaker is closed and no cooldown is active
func (c *RateLimitedHTTPClient) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.open && (c.cooldownUntil.IsZero() || time.Now().After(c.cooldownUntil))
}

// Reset clears breaker and cooldown state
func (c *RateLimitedHTTPClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive = 0
	c.open = false
	c.cooldownUntil = time.Time{}
	c.lastErr = nil
}

// Close releases idle connections
func (c *RateLimitedHTTPClient) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

// retryPolicy retries network errors and 5xx. 429 passes through untried so
// the caller honors Retry-After with a cooldown instead of hammering the
// endpoint.
func retryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, err
		}
		if resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}
}
