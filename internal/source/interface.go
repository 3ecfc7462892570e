package source

import (
	"context"
	"time"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Provider is one independent probability source. Implementations fetch
// their venue's view of a market and convert it into source estimates for
// the edge aggregator. A provider failure degrades that source for the
// build; it never fails the build.
type Provider interface {
	// Estimates returns the provider's probability estimates for the market.
	// A market the provider does not cover returns (nil, nil).
	Estimates(ctx context.Context, market models.Market) ([]models.SourceEstimate, error)

	// Key returns the provider's source key
	Key() models.SourceKey

	// Enabled returns whether this provider is currently enabled
	Enabled() bool
}

// LegSource supplies devigged candidate legs for accumulator construction.
// The sportsbook adapter implements it on top of its book quotes.
type LegSource interface {
	Legs(ctx context.Context, markets []models.Market, now time.Time) ([]models.AccaLeg, error)
}

// Feed supplies the venue markets a build scans
type Feed interface {
	Markets(ctx context.Context) ([]models.Market, error)
}

// Error codes carried by SourceError
const (
	ErrCodeUnavailable = "unavailable"
	ErrCodeTimeout     = "timeout"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeAuth        = "auth"
	ErrCodeParse       = "parse"
)

// SourceError is a typed failure from one provider. The engine turns these
// into degraded-source metadata on the build report.
type SourceError struct {
	Source     models.SourceKey
	Code       string
	Message    string
	RetryAfter *time.Time
	Err        error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return string(e.Source) + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return string(e.Source) + ": " + e.Code + ": " + e.Message
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Degradation converts the error into build-report metadata
func (e *SourceError) Degradation() models.SourceDegradation {
	return models.SourceDegradation{
		Source:     e.Source,
		Code:       e.Code,
		Message:    e.Message,
		RetryAfter: e.RetryAfter,
	}
}

// NewSourceError creates a new source error
func NewSourceError(source models.SourceKey, code, message string, err error) *SourceError {
	return &SourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
