// Package main provides enginectl, the operator CLI for the market engine.
// Trigger commands publish to the engine's Redis trigger channel; read
// commands consume the snapshot mirror or query Postgres directly, so they
// work whether or not the daemon is local.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/database"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/engine"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/learning"
	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/snapshot"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/track"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile  string
	minQuality  float64
	gradeFloor  string
	trackDays   int
	logger      *logrus.Logger
	cfg         *config.Config
	db          *database.DB
	repos       *repository.Repositories
	redisClient *redis.Client
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	edgesCmd.Flags().Float64Var(&minQuality, "min-quality", 0, "Only show edges at or above this quality score")
	accasCmd.Flags().StringVar(&gradeFloor, "grade", "C", "Only show accumulators at or above this grade (S, A, B, C)")
	trackCmd.Flags().IntVar(&trackDays, "days", 30, "Length of the track record period in days")
}

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Operate the market engine",
	Long:  `Trigger engine passes and inspect snapshots, track record and calibration state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		setupLogger()
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Trigger a build pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTrigger(cmd.Context(), engine.TriggerBuild)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Trigger a resolution pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTrigger(cmd.Context(), engine.TriggerResolve)
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Trigger a learning pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTrigger(cmd.Context(), engine.TriggerLearning)
	},
}

var edgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "Show the current snapshot's edge signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showEdges(cmd.Context())
	},
}

var accasCmd = &cobra.Command{
	Use:   "accas",
	Short: "Show the current snapshot's accumulators",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showAccumulators(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current snapshot's version, age and condition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Show the resolved-pick track record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showTrackRecord(cmd.Context())
	},
}

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Show the calibration multipliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLearningAdjustments(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	// Version needs neither config nor connections
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("enginectl %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	rootCmd.AddCommand(buildCmd, resolveCmd, learnCmd, edgesCmd, accasCmd, statusCmd, trackCmd, learningCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func setupLogger() {
	logger = applogger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	// Keep command output clean; structured logs only matter on failure
	logger.SetLevel(logrus.WarnLevel)
}

// setupRedis connects to the Redis instance the daemon mirrors snapshots to.
func setupRedis(ctx context.Context) error {
	if !cfg.Redis.Enabled {
		return fmt.Errorf("redis is disabled in configuration; snapshot and trigger commands need the daemon's Redis mirror")
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return nil
}

// setupDatabase connects to Postgres for commands that read pick history.
// Schema management belongs to the daemon, so this connects without it.
func setupDatabase(ctx context.Context) error {
	var err error
	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	return nil
}

func publishTrigger(ctx context.Context, payload string) error {
	if err := setupRedis(ctx); err != nil {
		return err
	}
	defer redisClient.Close()

	if cfg.Redis.TriggerChannel == "" {
		return fmt.Errorf("no trigger channel configured")
	}

	receivers, err := redisClient.Publish(ctx, cfg.Redis.TriggerChannel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish trigger: %w", err)
	}
	if receivers == 0 {
		fmt.Printf("❌ No engine is listening on %s\n", cfg.Redis.TriggerChannel)
		return fmt.Errorf("trigger %q published but no subscriber received it", payload)
	}

	fmt.Printf("✓ Trigger %q sent to %d listener(s)\n", payload, receivers)
	return nil
}

func fetchSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	if err := setupRedis(ctx); err != nil {
		return nil, err
	}
	defer redisClient.Close()

	snap, err := snapshot.Fetch(ctx, redisClient, cfg.Redis.SnapshotKey)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("no snapshot in redis yet; is the engine running and past its first build?")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	return snap, nil
}

func showEdges(ctx context.Context) error {
	snap, err := fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	shown := 0
	fmt.Printf("Edge signals (snapshot v%d, built %s)\n\n", snap.Version, snap.BuiltAt.Format(time.RFC3339))
	for _, e := range snap.Edges {
		if e.QualityScore < minQuality {
			continue
		}
		shown++
		fmt.Printf("%s [%s]\n", e.MarketID, e.Sport)
		fmt.Printf("  Consensus: %.4f  Market: %.4f  Divergence: %+.4f\n", e.AggregatedProbability, e.MarketProbability, e.Divergence)
		fmt.Printf("  Quality: %.1f (%s)  Strength: %s  Sources: %d\n", e.QualityScore, e.QualityGrade, e.SignalStrength, e.SourceCount)
	}

	if shown == 0 {
		fmt.Printf("No edges at or above quality %.1f (snapshot holds %d)\n", minQuality, len(snap.Edges))
	} else {
		fmt.Printf("\n%d of %d edges shown\n", shown, len(snap.Edges))
	}
	return nil
}

func showAccumulators(ctx context.Context) error {
	floor := models.AccaGrade(gradeFloor)
	switch floor {
	case models.AccaGradeS, models.AccaGradeA, models.AccaGradeB, models.AccaGradeC:
	default:
		return fmt.Errorf("invalid grade %q: must be one of S, A, B, C", gradeFloor)
	}

	snap, err := fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	shown := 0
	fmt.Printf("Accumulators (snapshot v%d, built %s)\n\n", snap.Version, snap.BuiltAt.Format(time.RFC3339))
	for i, a := range snap.Accumulators {
		if !a.Grade.AtLeast(floor) {
			continue
		}
		shown++
		fmt.Printf("%d. Grade %s  @%.2f  EV %+.2f%% [%.2f, %.2f]  Stake %.2f\n",
			i+1, a.Grade, a.CombinedOdds, a.EVPercent, a.EVConfidence.Low, a.EVConfidence.High, a.KellyStake)
		fmt.Printf("   P(independent) %.4f  P(adjusted) %.4f  Avg correlation %.3f\n",
			a.IndependentProbability, a.CorrelationAdjustedProbability, a.AvgCorrelation)
		for _, leg := range a.Legs {
			fmt.Printf("   - %s %s (%s) @%.2f\n", leg.EventID, leg.Pick, leg.BetType, leg.DecimalOdds)
		}
		if a.Skeptical {
			fmt.Printf("   ⚠ %s\n", a.SkepticNote)
		}
	}

	if shown == 0 {
		fmt.Printf("No accumulators at or above grade %s (snapshot holds %d)\n", floor, len(snap.Accumulators))
	} else {
		fmt.Printf("\n%d of %d accumulators shown\n", shown, len(snap.Accumulators))
	}
	return nil
}

func showStatus(ctx context.Context) error {
	snap, err := fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	age := time.Since(snap.BuiltAt).Round(time.Second)

	fmt.Println("Engine snapshot:")
	fmt.Printf("  Version: %d\n", snap.Version)
	fmt.Printf("  Build ID: %s\n", snap.BuildID)
	fmt.Printf("  Status: %s\n", snap.Status)
	fmt.Printf("  Built: %s (%s ago)\n", snap.BuiltAt.Format(time.RFC3339), age)
	fmt.Printf("  Edges: %d\n", len(snap.Edges))
	fmt.Printf("  Accumulators: %d\n", len(snap.Accumulators))

	if len(snap.Degraded) > 0 {
		fmt.Println("\nDegraded sources:")
		for _, d := range snap.Degraded {
			fmt.Printf("  ❌ %s [%s]: %s\n", d.Source, d.Code, d.Message)
			if d.RetryAfter != nil {
				fmt.Printf("     Retry after: %s\n", d.RetryAfter.Format(time.RFC3339))
			}
		}
	} else {
		fmt.Println("\n✓ All sources healthy")
	}
	return nil
}

func showTrackRecord(ctx context.Context) error {
	if err := setupDatabase(ctx); err != nil {
		return err
	}
	defer db.Close()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -trackDays)

	tracker := track.New(repos.Pick, logger)
	rec, err := tracker.Record(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to compute track record: %w", err)
	}

	fmt.Printf("Track record, last %d days (%s to %s)\n\n", trackDays, start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("  Picks: %d (%d won, %d lost, %d pushed)\n", rec.TotalPicks, rec.Won, rec.Lost, rec.Pushed)
	fmt.Printf("  Win Rate: %.1f%%\n", rec.WinRate*100)
	fmt.Printf("  Staked: %.2f  PnL: %+.2f  ROI: %+.2f%%\n", rec.TotalStaked, rec.TotalPnL, rec.ROI*100)
	fmt.Printf("  Profit Factor: %.2f\n", rec.ProfitFactor)
	fmt.Printf("  Average Stake: %.2f  Largest Win: %.2f  Largest Loss: %.2f\n", rec.AverageStake, rec.LargestWin, rec.LargestLoss)
	fmt.Printf("  Streak: %+d (best %+d, worst %+d)\n", rec.CurrentStreak, rec.BestStreak, rec.WorstStreak)

	if len(rec.ByGrade) > 0 {
		fmt.Println("\nBy grade:")
		for _, g := range []models.AccaGrade{models.AccaGradeS, models.AccaGradeA, models.AccaGradeB, models.AccaGradeC} {
			b, ok := rec.ByGrade[g]
			if !ok {
				continue
			}
			fmt.Printf("  %s: %d picks, %.1f%% win rate, ROI %+.2f%%\n", g, b.Picks, b.WinRate*100, b.ROI*100)
		}
	}

	if len(rec.BySport) > 0 {
		fmt.Println("\nBy sport:")
		for sport, b := range rec.BySport {
			fmt.Printf("  %s: %d picks, %.1f%% win rate, ROI %+.2f%%\n", sport, b.Picks, b.WinRate*100, b.ROI*100)
		}
	}
	return nil
}

func showLearningAdjustments(ctx context.Context) error {
	if err := setupDatabase(ctx); err != nil {
		return err
	}
	defer db.Close()

	calibrator := learning.New(cfg.Learning, repos.Pick, repos.Adjustment, logger)
	adjs, err := calibrator.Adjustments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load calibration multipliers: %w", err)
	}

	if len(adjs) == 0 {
		fmt.Println("No calibration multipliers yet; the learning pass needs resolved picks")
		return nil
	}

	fmt.Printf("Calibration multipliers (%d categories)\n\n", len(adjs))
	for _, a := range adjs {
		marker := " "
		if a.Multiplier > 1 {
			marker = "+"
		} else if a.Multiplier < 1 {
			marker = "-"
		}
		fmt.Printf("%s %-24s x%.3f  (realized %.1f%% vs implied %.1f%%, n=%d, updated %s)\n",
			marker, a.Category, a.Multiplier, a.RealizedWin*100, a.ImpliedWin*100, a.SampleSize, a.UpdatedAt.Format("2006-01-02"))
	}
	return nil
}
