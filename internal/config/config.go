// Package config provides configuration management for the market engine.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete engine configuration
type Config struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Build       BuildConfig       `mapstructure:"build" validate:"required"`
	Devig       DevigConfig       `mapstructure:"devig" validate:"required"`
	Edge        EdgeConfig        `mapstructure:"edge" validate:"required"`
	Correlation CorrelationConfig `mapstructure:"correlation" validate:"required"`
	Acca        AccaConfig        `mapstructure:"acca" validate:"required"`
	Staking     StakingConfig     `mapstructure:"staking" validate:"required"`
	Learning    LearningConfig    `mapstructure:"learning" validate:"required"`
	Sources     SourcesConfig     `mapstructure:"sources" validate:"required"`
	Metrics     MetricsConfig     `mapstructure:"metrics" validate:"required"`
	Health      HealthConfig      `mapstructure:"health"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// RedisConfig represents the snapshot mirror and trigger channel settings.
// Disabled leaves the engine fully functional with in-process snapshots only.
type RedisConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db" validate:"gte=0"`
	SnapshotKey        string `mapstructure:"snapshot_key"`
	SnapshotTTLSeconds int    `mapstructure:"snapshot_ttl_seconds" validate:"gte=0"`
	StreamKey          string `mapstructure:"stream_key"`
	TriggerChannel     string `mapstructure:"trigger_channel"`
}

// BuildConfig represents the scan/build cadence and budgets
type BuildConfig struct {
	IntervalMinutes        int    `mapstructure:"interval_minutes" validate:"required,gt=0"`
	BudgetSeconds          int    `mapstructure:"budget_seconds" validate:"required,gt=0"`
	MaxMarkets             int    `mapstructure:"max_markets" validate:"required,gt=0"`
	SourceConcurrency      int    `mapstructure:"source_concurrency" validate:"required,gt=0"`
	ResolveIntervalMinutes int    `mapstructure:"resolve_interval_minutes" validate:"required,gt=0"`
	LearningIntervalHours  int    `mapstructure:"learning_interval_hours" validate:"required,gt=0"`
	ProposeGrade           string `mapstructure:"propose_grade" validate:"omitempty,accagrade"`
	MaxProposalsPerBuild   int    `mapstructure:"max_proposals_per_build" validate:"gte=0"`
}

// Interval returns the periodic build interval
func (b BuildConfig) Interval() time.Duration {
	return time.Duration(b.IntervalMinutes) * time.Minute
}

// Budget returns the wall-clock budget for one build
func (b BuildConfig) Budget() time.Duration {
	return time.Duration(b.BudgetSeconds) * time.Second
}

// ResolveInterval returns the resolution pass interval
func (b BuildConfig) ResolveInterval() time.Duration {
	return time.Duration(b.ResolveIntervalMinutes) * time.Minute
}

// LearningInterval returns the learning recomputation interval
func (b BuildConfig) LearningInterval() time.Duration {
	return time.Duration(b.LearningIntervalHours) * time.Hour
}

// DevigConfig represents vig-removal settings
type DevigConfig struct {
	MinBooks               int     `mapstructure:"min_books" validate:"required,gte=2"`
	Method                 string  `mapstructure:"method" validate:"required,oneof=auto multiplicative shin"`
	ShinMaxIterations      int     `mapstructure:"shin_max_iterations" validate:"required,gt=0"`
	ShinTolerance          float64 `mapstructure:"shin_tolerance" validate:"required,gt=0"`
	OutlierSigma           float64 `mapstructure:"outlier_sigma" validate:"required,gt=0"`
	FreshnessWindowMinutes int     `mapstructure:"freshness_window_minutes" validate:"required,gt=0"`
}

// FreshnessWindow returns the maximum quote age accepted for devigging
func (d DevigConfig) FreshnessWindow() time.Duration {
	return time.Duration(d.FreshnessWindowMinutes) * time.Minute
}

// EdgeConfig represents estimate aggregation and quality scoring settings
type EdgeConfig struct {
	EstimateTTLMinutes     int                `mapstructure:"estimate_ttl_minutes" validate:"required,gt=0"`
	RecencyHalfLifeMinutes int                `mapstructure:"recency_half_life_minutes" validate:"required,gt=0"`
	SourceWeights          map[string]float64 `mapstructure:"source_weights"`
	StrongThreshold        float64            `mapstructure:"strong_threshold" validate:"required,probability"`
	ModerateThreshold      float64            `mapstructure:"moderate_threshold" validate:"required,probability"`
	DiversityPoints        float64            `mapstructure:"diversity_points" validate:"required,gt=0"`
	AgreementPoints        float64            `mapstructure:"agreement_points" validate:"required,gt=0"`
	HardSourcePoints       float64            `mapstructure:"hard_source_points" validate:"required,gt=0"`
	AgreementSigmaRef      float64            `mapstructure:"agreement_sigma_ref" validate:"required,gt=0"`
	MinServeScore          float64            `mapstructure:"min_serve_score" validate:"gte=0,lte=100"`
}

// EstimateTTL returns the staleness cutoff for source estimates
func (e EdgeConfig) EstimateTTL() time.Duration {
	return time.Duration(e.EstimateTTLMinutes) * time.Minute
}

// RecencyHalfLife returns the estimate weight half-life
func (e EdgeConfig) RecencyHalfLife() time.Duration {
	return time.Duration(e.RecencyHalfLifeMinutes) * time.Minute
}

// CorrelationConfig represents the pairwise leg correlation table
type CorrelationConfig struct {
	SameEventBase    map[string]float64 `mapstructure:"same_event_base"`
	SameEventLineMix float64            `mapstructure:"same_event_line_mix" validate:"gte=-1,lte=1"`
	SameSport        float64            `mapstructure:"same_sport" validate:"gte=-1,lte=1"`
	CrossSport       float64            `mapstructure:"cross_sport" validate:"gte=-1,lte=1"`
	SafetyMargin     float64            `mapstructure:"safety_margin" validate:"gte=0,lte=1"`
	PenaltyWeight    float64            `mapstructure:"penalty_weight" validate:"gt=0,lte=1"`
}

// MonteCarloConfig represents EV confidence interval sampling settings
type MonteCarloConfig struct {
	Iterations     int     `mapstructure:"iterations" validate:"required,gt=0"`
	Seed           int64   `mapstructure:"seed"`
	LowPercentile  float64 `mapstructure:"low_percentile" validate:"required,probability"`
	HighPercentile float64 `mapstructure:"high_percentile" validate:"required,probability"`
	DefaultSigma   float64 `mapstructure:"default_sigma" validate:"required,gt=0,lt=1"`
}

// GradingConfig represents accumulator tier composite settings
type GradingConfig struct {
	EVRef         float64 `mapstructure:"ev_ref" validate:"required,gt=0"`
	EVPoints      float64 `mapstructure:"ev_points" validate:"required,gt=0"`
	WidthRef      float64 `mapstructure:"width_ref" validate:"required,gt=0"`
	WidthPoints   float64 `mapstructure:"width_points" validate:"required,gt=0"`
	QualityPoints float64 `mapstructure:"quality_points" validate:"required,gt=0"`
	SMin          float64 `mapstructure:"s_min" validate:"required,gt=0,lte=100"`
	AMin          float64 `mapstructure:"a_min" validate:"required,gt=0,lte=100"`
	BMin          float64 `mapstructure:"b_min" validate:"required,gt=0,lte=100"`
}

// AccaConfig represents accumulator builder settings
type AccaConfig struct {
	MinLegs                int              `mapstructure:"min_legs" validate:"required,gte=2"`
	MaxLegs                int              `mapstructure:"max_legs" validate:"required,gte=2,lte=6"`
	MaxPool                int              `mapstructure:"max_pool" validate:"required,gt=0"`
	FreshnessWindowMinutes int              `mapstructure:"freshness_window_minutes" validate:"required,gt=0"`
	MinEVPercent           float64          `mapstructure:"min_ev_percent" validate:"gte=0"`
	SkepticismEVPercent    float64          `mapstructure:"skepticism_ev_percent" validate:"required,gt=0"`
	CrossSportOnly         bool             `mapstructure:"cross_sport_only"`
	MaxPerLeg              int              `mapstructure:"max_per_leg" validate:"required,gt=0"`
	MaxResults             int              `mapstructure:"max_results" validate:"required,gt=0"`
	MonteCarlo             MonteCarloConfig `mapstructure:"monte_carlo" validate:"required"`
	Grading                GradingConfig    `mapstructure:"grading" validate:"required"`
}

// FreshnessWindow returns the maximum leg quote age accepted by the builder
func (a AccaConfig) FreshnessWindow() time.Duration {
	return time.Duration(a.FreshnessWindowMinutes) * time.Minute
}

// StakingConfig represents stake sizing settings
type StakingConfig struct {
	Bankroll         float64 `mapstructure:"bankroll" validate:"required,gt=0"`
	KellyFraction    float64 `mapstructure:"kelly_fraction" validate:"required,gt=0,lte=1"`
	MaxBankrollShare float64 `mapstructure:"max_bankroll_share" validate:"required,gt=0,lte=0.2"`
	MinStake         float64 `mapstructure:"min_stake" validate:"gte=0"`
}

// LearningConfig represents calibration multiplier settings
type LearningConfig struct {
	MinSampleSize int     `mapstructure:"min_sample_size" validate:"required,gt=0"`
	MinMultiplier float64 `mapstructure:"min_multiplier" validate:"required,gt=0"`
	MaxMultiplier float64 `mapstructure:"max_multiplier" validate:"required,gt=0"`
	LookbackDays  int     `mapstructure:"lookback_days" validate:"required,gt=0"`
}

// Lookback returns the resolved-pick window the calibrator aggregates
func (l LearningConfig) Lookback() time.Duration {
	return time.Duration(l.LookbackDays) * 24 * time.Hour
}

// HTTPClientConfig represents the shared settings for source HTTP clients
type HTTPClientConfig struct {
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries         int     `mapstructure:"max_retries" validate:"gte=0"`
	RetryWaitMinMs     int     `mapstructure:"retry_wait_min_ms" validate:"required,gt=0"`
	RetryWaitMaxMs     int     `mapstructure:"retry_wait_max_ms" validate:"required,gt=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	CircuitBreakerMax  int     `mapstructure:"circuit_breaker_max" validate:"required,gt=0"`
}

// Timeout returns the per-request timeout
func (h HTTPClientConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// SourceConfig represents one independent probability provider
type SourceConfig struct {
	Name               string  `mapstructure:"name" validate:"required,sourcekey"`
	Enabled            bool    `mapstructure:"enabled"`
	BaseURL            string  `mapstructure:"base_url" validate:"omitempty,url"`
	StreamURL          string  `mapstructure:"stream_url"`
	APIKey             string  `mapstructure:"api_key"`
	Weight             float64 `mapstructure:"weight" validate:"gte=0"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"gte=0"`
	CacheTTLMinutes    int     `mapstructure:"cache_ttl_minutes" validate:"gte=0"`
	Sports             []string `mapstructure:"sports" validate:"omitempty,sports"`
}

// Timeout returns the per-source call timeout, zero meaning the shared default
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long this source's estimates are reused between polls
func (s SourceConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLMinutes) * time.Minute
}

// FeedConfig represents the primary venue whose markets each build scans
type FeedConfig struct {
	BaseURL            string  `mapstructure:"base_url" validate:"required,url"`
	APIKey             string  `mapstructure:"api_key"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds" validate:"gte=0"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" validate:"gte=0"`
	Limit              int     `mapstructure:"limit" validate:"gte=0"`
}

// SourcesConfig represents the source adapter layer configuration
type SourcesConfig struct {
	HTTP      HTTPClientConfig `mapstructure:"http" validate:"required"`
	Feed      FeedConfig       `mapstructure:"feed" validate:"required"`
	Providers []SourceConfig   `mapstructure:"providers" validate:"required,min=1,dive"`
}

// Provider returns the configuration for the named source, if present
func (s SourcesConfig) Provider(name string) (SourceConfig, bool) {
	for _, p := range s.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return SourceConfig{}, false
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health check server configuration
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
