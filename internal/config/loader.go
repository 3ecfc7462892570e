// Package config provides configuration management for the market engine.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	// Create a new viper instance
	v := viper.New()
	v.SetConfigType("yaml")

	// Read the expanded configuration
	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set environment variable prefix
	v.SetEnvPrefix("MARKET_ENGINE")

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal configuration into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional fields
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	// Set configuration file path with default
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")

	// Set environment variable prefix
	v.SetEnvPrefix("MARKET_ENGINE")

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set some reasonable defaults
	v.SetDefault("app.name", "market-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("build.interval_minutes", 15)
	v.SetDefault("build.budget_seconds", 120)
	v.SetDefault("build.max_markets", 50)
	v.SetDefault("build.source_concurrency", 4)
	v.SetDefault("build.resolve_interval_minutes", 10)
	v.SetDefault("build.learning_interval_hours", 24)
	v.SetDefault("devig.min_books", 2)
	v.SetDefault("devig.method", "auto")
	v.SetDefault("devig.shin_max_iterations", 100)
	v.SetDefault("devig.shin_tolerance", 1e-10)
	v.SetDefault("devig.outlier_sigma", 2.0)
	v.SetDefault("devig.freshness_window_minutes", 30)
	v.SetDefault("edge.estimate_ttl_minutes", 30)
	v.SetDefault("edge.recency_half_life_minutes", 60)
	v.SetDefault("acca.min_legs", 2)
	v.SetDefault("acca.max_legs", 6)
	v.SetDefault("acca.monte_carlo.iterations", 2000)
	v.SetDefault("acca.monte_carlo.low_percentile", 0.05)
	v.SetDefault("acca.monte_carlo.high_percentile", 0.95)
	v.SetDefault("staking.kelly_fraction", 0.25)
	v.SetDefault("staking.max_bankroll_share", 0.03)
	v.SetDefault("learning.min_sample_size", 25)
	v.SetDefault("learning.min_multiplier", 0.5)
	v.SetDefault("learning.max_multiplier", 1.5)
	v.SetDefault("learning.lookback_days", 90)
	v.SetDefault("redis.snapshot_key", "engine:snapshot")
	v.SetDefault("redis.snapshot_ttl_seconds", 3600)
	v.SetDefault("redis.stream_key", "engine:builds")
	v.SetDefault("redis.trigger_channel", "engine:triggers")

	// Read and expand the configuration file if it exists
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand environment variables in the configuration (${VAR} syntax)
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// If file doesn't exist, continue with defaults and environment variables

	// Unmarshal configuration into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// ReloadFromEnv reloads specific configuration values from environment variables
func ReloadFromEnv(cfg *Config) error {
	v := viper.New()

	// Set environment variable prefix
	v.SetEnvPrefix("MARKET_ENGINE")

	// Enable automatic binding of environment variables
	v.AutomaticEnv()

	// Replace dots with underscores in environment variable names
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Check for specific environment variables and update the config
	if envPath := os.Getenv("MARKET_ENGINE_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}

	return nil
}
