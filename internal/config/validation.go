// Package config provides configuration management for the market engine.
package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Register custom validation functions
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("probability", validateProbability)
	_ = v.RegisterValidation("sourcekey", validateSourceKey)
	_ = v.RegisterValidation("sports", validateSports)
	_ = v.RegisterValidation("accagrade", validateAccaGrade)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional cross-field validations
	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	switch env {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	level := fl.Field().String()
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateProbability validates that a float field lies in [0, 1]
func validateProbability(fl validator.FieldLevel) bool {
	p := fl.Field().Float()
	return p >= 0 && p <= 1
}

// validateSourceKey validates a probability source name
func validateSourceKey(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "forecastCrowd", "crossPlatform", "languageModel",
		"sportsOdds", "financialProxy", "regulatedExchange":
		return true
	default:
		return false
	}
}

// validateSports validates a sport filter list
func validateSports(fl validator.FieldLevel) bool {
	sports, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}

	validSports := map[string]bool{
		"nba":    true,
		"nfl":    true,
		"nhl":    true,
		"mlb":    true,
		"ufc":    true,
		"soccer": true,
	}

	for _, sport := range sports {
		if !validSports[sport] {
			return false
		}
	}
	return true
}

// validateAccaGrade validates an accumulator grade threshold
func validateAccaGrade(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "S", "A", "B", "C":
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	// A build must finish well inside its schedule slot
	if cfg.Build.BudgetSeconds > cfg.Build.IntervalMinutes*60 {
		return fmt.Errorf("build budget_seconds cannot exceed the build interval")
	}

	// Edge confidence bands must be ordered
	if cfg.Edge.StrongThreshold <= cfg.Edge.ModerateThreshold {
		return fmt.Errorf("edge strong_threshold must exceed moderate_threshold")
	}

	// Accumulator leg bounds
	if cfg.Acca.MaxLegs < cfg.Acca.MinLegs {
		return fmt.Errorf("acca max_legs cannot be less than min_legs")
	}

	// Grade breakpoints must descend S > A > B
	g := cfg.Acca.Grading
	if g.SMin <= g.AMin || g.AMin <= g.BMin {
		return fmt.Errorf("acca grading thresholds must satisfy s_min > a_min > b_min")
	}

	// Confidence interval percentiles must be ordered
	mc := cfg.Acca.MonteCarlo
	if mc.LowPercentile >= mc.HighPercentile {
		return fmt.Errorf("monte carlo low_percentile must be below high_percentile")
	}

	// The neutral multiplier must stay reachable
	if cfg.Learning.MinMultiplier > 1 || cfg.Learning.MaxMultiplier < 1 {
		return fmt.Errorf("learning multiplier bounds must bracket 1.0")
	}
	if cfg.Learning.MinMultiplier >= cfg.Learning.MaxMultiplier {
		return fmt.Errorf("learning min_multiplier must be below max_multiplier")
	}

	// Retry backoff window must be ordered
	if cfg.Sources.HTTP.RetryWaitMinMs > cfg.Sources.HTTP.RetryWaitMaxMs {
		return fmt.Errorf("sources http retry_wait_min_ms cannot exceed retry_wait_max_ms")
	}

	// Validate production environment requirements
	if cfg.IsProduction() {
		if cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
		}
		if !hasEnabledHardSource(cfg) {
			return fmt.Errorf("at least one odds-anchored source must be enabled in production")
		}
	}

	// Validate connection pool settings
	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	return nil
}

// hasEnabledHardSource reports whether any hard data source is enabled
func hasEnabledHardSource(cfg *Config) bool {
	for _, p := range cfg.Sources.Providers {
		if !p.Enabled {
			continue
		}
		switch p.Name {
		case "sportsOdds", "financialProxy", "regulatedExchange":
			return true
		}
	}
	return false
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "probability":
			errMsg += fmt.Sprintf("- Field '%s' must be between 0 and 1, got '%v'\n", field, value)
		case "sourcekey":
			errMsg += fmt.Sprintf("- Field '%s' has unknown source name '%v'\n", field, value)
		case "accagrade":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: S, A, B, C\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg)
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() {
		// Production must have SSL enabled
		if cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires database SSL mode to be 'require' or 'verify-full'")
		}

		// Production should not carry placeholder credentials
		for _, p := range cfg.Sources.Providers {
			if p.Enabled && isTestCredential(p.APIKey) {
				return fmt.Errorf("production environment should not use test credentials for source %s", p.Name)
			}
		}
	}

	return nil
}

// isTestCredential checks if a credential looks like a test credential
func isTestCredential(credential string) bool {
	if credential == "" {
		return false
	}

	testPatterns := []string{
		"test", "demo", "example", "placeholder", "YOUR_",
	}

	for _, pattern := range testPatterns {
		if match, _ := regexp.MatchString("(?i)"+pattern, credential); match {
			return true
		}
	}

	return false
}
