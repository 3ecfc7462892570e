package source

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/devig"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Factory creates Provider implementations from configuration
type Factory struct {
	cfg      *config.Config
	devigger *devig.Devigger
	log      *logrus.Logger

	estimates   *EstimateCache
	quotes      *QuoteCache
	httpClients map[models.SourceKey]*RateLimitedHTTPClient
	sportsOdds  *SportsOddsClient
}

// NewFactory creates a source factory. The estimate cache is shared across
// providers; the quote cache belongs to the sports odds adapter and its
// stream.
func NewFactory(cfg *config.Config, devigger *devig.Devigger, log *logrus.Logger) *Factory {
	defaultTTL := cfg.Edge.EstimateTTL()
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	quoteTTL := cfg.Devig.FreshnessWindow()
	if quoteTTL <= 0 {
		quoteTTL = 10 * time.Minute
	}
	return &Factory{
		cfg:         cfg,
		devigger:    devigger,
		log:         log,
		estimates:   NewEstimateCache(defaultTTL),
		quotes:      NewQuoteCache(quoteTTL),
		httpClients: make(map[models.SourceKey]*RateLimitedHTTPClient),
	}
}

// NewProvider creates the provider for one source configuration
func (f *Factory) NewProvider(src config.SourceConfig) (Provider, error) {
	httpClient := NewRateLimitedHTTPClient(f.cfg.Sources.HTTP, src, f.log)
	f.httpClients[models.SourceKey(src.Name)] = httpClient

	switch models.SourceKey(src.Name) {
	case models.SourceForecastCrowd:
		return NewForecastCrowdClient(httpClient, f.estimates, src, f.log), nil

	case models.SourceCrossPlatform:
		return NewCrossPlatformClient(httpClient, f.estimates, src, f.log), nil

	case models.SourceLanguageModel:
		return NewLanguageModelClient(httpClient, f.estimates, src, f.log), nil

	case models.SourceSportsOdds:
		if src.APIKey == "" {
			return nil, fmt.Errorf("sports odds API key is required")
		}
		client := NewSportsOddsClient(httpClient, f.estimates, f.quotes, f.devigger, src, f.log)
		f.sportsOdds = client
		return client, nil

	case models.SourceFinancialProxy:
		return NewFinancialProxyClient(httpClient, f.estimates, src, f.log), nil

	case models.SourceRegulatedExchange:
		return NewRegulatedExchangeClient(httpClient, f.estimates, src, f.log), nil

	default:
		return nil, fmt.Errorf("unknown source: %s", src.Name)
	}
}

// NewProviders creates all enabled providers from configuration
func (f *Factory) NewProviders() ([]Provider, error) {
	var providers []Provider
	for _, src := range f.cfg.Sources.Providers {
		if !src.Enabled {
			f.log.WithField("source", src.Name).Info("Skipping disabled source")
			continue
		}
		p, err := f.NewProvider(src)
		if err != nil {
			return nil, fmt.Errorf("failed to create source %s: %w", src.Name, err)
		}
		providers = append(providers, p)
		f.log.WithField("source", src.Name).Info("Created source provider")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no enabled sources configured")
	}
	return providers, nil
}

// NewFeed creates the venue market feed client
func (f *Factory) NewFeed() *VenueFeedClient {
	feedCfg := f.cfg.Sources.Feed
	httpClient := NewRateLimitedHTTPClient(f.cfg.Sources.HTTP, config.SourceConfig{
		Name:               string(VenueFeedKey),
		Enabled:            true,
		BaseURL:            feedCfg.BaseURL,
		APIKey:             feedCfg.APIKey,
		TimeoutSeconds:     feedCfg.TimeoutSeconds,
		RateLimitPerSecond: feedCfg.RateLimitPerSecond,
	}, f.log)
	f.httpClients[VenueFeedKey] = httpClient
	return NewVenueFeedClient(httpClient, feedCfg, f.log)
}

// LegSource returns the accumulator leg source, nil when the sports odds
// provider is not enabled
func (f *Factory) LegSource() LegSource {
	if f.sportsOdds == nil {
		return nil
	}
	return f.sportsOdds
}

// SportsOdds returns the sports odds client for stream wiring, nil when not
// enabled
func (f *Factory) SportsOdds() *SportsOddsClient {
	return f.sportsOdds
}

// Cooldowns reports the providers currently suspended by a rate-limit
// cooldown and when each resumes
func (f *Factory) Cooldowns() map[models.SourceKey]time.Time {
	out := make(map[models.SourceKey]time.Time)
	for key, client := range f.httpClients {
		if until, active := client.Cooldown(); active {
			out[key] = until
		}
	}
	return out
}

// Close releases every provider's HTTP resources
func (f *Factory) Close() {
	for _, client := range f.httpClients {
		_ = client.Close()
	}
}
