// Package main provides the entry point for the market engine daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/acca"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/correlation"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/devig"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/edge"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/engine"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/health"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/learning"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/resolve"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/scheduler"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/snapshot"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/source"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/staking"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/track"
)

// Build information, set via ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("USE_AWS_SECRETS") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when USE_AWS_SECRETS is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := config.ValidateEnvironment(cfg); err != nil {
		log.Fatalf("Invalid configuration for environment %s: %v", cfg.App.Environment, err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
		"version":     Version,
		"commit":      GitCommit,
	}).Info("Market engine starting")

	metrics.InitRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection and schema
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create repositories")
	}

	// Initialize source adapters
	devigger := devig.New(devig.FromConfig(cfg.Devig), appLog)
	factory := source.NewFactory(cfg, devigger, appLog)
	defer factory.Close()

	providers, err := factory.NewProviders()
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create source providers")
	}
	feed := factory.NewFeed()

	sportsOdds := factory.SportsOdds()
	if sportsOdds == nil {
		appLog.Fatal("The sportsOdds source must be enabled: it supplies accumulator legs and event results")
	}

	// Redis mirrors snapshots for external consumers and carries manual
	// triggers. The engine degrades to in-process snapshots without it.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			appLog.WithError(err).Warn("Redis unreachable, continuing with in-process snapshots only")
			redisClient = nil
		}
		pingCancel()
	}

	store := snapshot.NewStore(cfg.Redis, redisClient, appLog)

	// Assemble the scoring pipeline
	calibrator := learning.New(cfg.Learning, repos.Pick, repos.Adjustment, appLog)
	aggregator := edge.New(edge.FromConfig(cfg.Edge), calibrator, appLog)
	model := correlation.New(correlation.FromConfig(cfg.Correlation))
	sizer := staking.New(staking.FromConfig(cfg.Staking), appLog)
	builder := acca.New(acca.FromConfig(cfg.Acca), model, sizer, calibrator, appLog)
	resolver := resolve.New(repos.Pick, sportsOdds, appLog)
	tracker := track.New(repos.Pick, appLog)

	metrics.UpdateBankroll(cfg.Staking.Bankroll)

	eng, err := engine.New(cfg, engine.Dependencies{
		Feed:       feed,
		Providers:  providers,
		Legs:       factory.LegSource(),
		Cooldowns:  factory.Cooldowns,
		Aggregator: aggregator,
		Signals:    source.NewSignalCache(cfg.Edge.EstimateTTL() / 4),
		Builder:    builder,
		Resolver:   resolver,
		Calibrator: calibrator,
		Tracker:    tracker,
		Snapshots:  store,
		Picks:      repos.Pick,
		Builds:     repos.Build,
		Redis:      redisClient,
	}, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create engine")
	}

	// Connect the live quote stream when the sportsOdds source exposes one.
	// Polled odds cover the gap if the stream is down, so failures here warn
	// rather than abort.
	var stream *source.StreamClient
	if srcCfg, ok := cfg.Sources.Provider(string(models.SourceSportsOdds)); ok && srcCfg.StreamURL != "" {
		stream = source.NewStreamClient(srcCfg.StreamURL, srcCfg.APIKey, sportsOdds.QuoteUpsert(), appLog)
		if err := stream.Connect(ctx); err != nil {
			appLog.WithError(err).Warn("Quote stream connect failed, continuing on polled odds")
		} else if err := stream.Subscribe(srcCfg.Sports); err != nil {
			appLog.WithError(err).Warn("Quote stream subscribe failed, continuing on polled odds")
		}
		defer func() {
			if err := stream.Close(); err != nil {
				appLog.WithError(err).Error("Error closing quote stream")
			}
		}()
	}

	// Start the engine: hydrates calibration state and kicks the first build
	if err := eng.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start engine")
	}

	// Schedule the periodic passes
	sched := scheduler.New(appLog)

	buildSpec := fmt.Sprintf("@every %s", cfg.Build.Interval())
	if err := sched.AddJob("build", buildSpec, func() {
		if _, err := eng.RunBuild(ctx, "schedule"); err != nil && !errors.Is(err, engine.ErrBuildInFlight) {
			appLog.WithError(err).Error("Scheduled build failed")
		}
	}); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule builds")
	}

	resolveSpec := fmt.Sprintf("@every %s", cfg.Build.ResolveInterval())
	if err := sched.AddJob("resolve", resolveSpec, func() {
		if _, err := eng.RunResolution(ctx); err != nil {
			appLog.WithError(err).Error("Scheduled resolution pass failed")
		}
	}); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule resolution passes")
	}

	learningSpec := fmt.Sprintf("@every %s", cfg.Build.LearningInterval())
	if err := sched.AddJob("learning", learningSpec, func() {
		if err := eng.RunLearning(ctx); err != nil {
			appLog.WithError(err).Error("Scheduled learning pass failed")
		}
	}); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule learning passes")
	}

	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	// Expose Prometheus metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			appLog.WithFields(logrus.Fields{
				"port": cfg.Metrics.Port,
				"path": cfg.Metrics.Path,
			}).Info("Metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.WithError(err).Error("Metrics server error")
			}
		}()
	}

	// Health endpoints: /ready stays 503 until the first snapshot is built
	healthSrv := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Commit:      GitCommit,
		Port:        cfg.Health.Port,
		Logger:      appLog,
		DB:          db,
		Snapshots:   store,
	})
	if err := healthSrv.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthSrv.SetReady(true)

	appLog.WithFields(logrus.Fields{
		"providers":        len(providers),
		"build_interval":   cfg.Build.Interval().String(),
		"resolve_interval": cfg.Build.ResolveInterval().String(),
		"redis_mirror":     redisClient != nil,
		"quote_stream":     stream != nil,
	}).Info("Market engine running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	appLog.WithField("signal", sig.String()).Info("Shutdown signal received")

	// Graceful shutdown
	appLog.Info("Initiating graceful shutdown...")

	healthSrv.SetReady(false)
	cancel()

	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping scheduler")
	}
	if err := eng.Stop(); err != nil {
		appLog.WithError(err).Error("Error stopping engine")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Error stopping metrics server")
		}
	}
	if err := healthSrv.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error stopping health server")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLog.WithError(err).Error("Error closing Redis connection")
		}
	}

	// Give in-flight builds time to publish
	time.Sleep(2 * time.Second)

	appLog.Info("Market engine shut down successfully")
}
