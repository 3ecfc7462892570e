// Package engine coordinates the build pipeline: venue markets are scanned
// into edge signals and accumulator proposals, published as a versioned
// snapshot, and tracked through resolution and calibration. Periodic and
// on-demand triggers serialize onto a single in-flight build; readers keep
// the previous snapshot until the next one is published wholesale.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/acca"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/edge"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/learning"
	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/repository"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/resolve"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/snapshot"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/source"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/track"
)

// ErrBuildInFlight is returned when a build trigger arrives while another
// build is still running. The caller keeps serving the current snapshot.
var ErrBuildInFlight = errors.New("build already in flight")

// Trigger payloads accepted on the Redis trigger channel
const (
	TriggerBuild    = "build"
	TriggerResolve  = "resolve"
	TriggerLearning = "learn"
)

// snapshotAgeTick is how often the snapshot age gauge is refreshed
const snapshotAgeTick = 15 * time.Second

// CooldownFunc reports sources currently cooling down after rate limiting
type CooldownFunc func() map[models.SourceKey]time.Time

// Dependencies holds the collaborators the engine coordinates
type Dependencies struct {
	Feed       source.Feed
	Providers  []source.Provider
	Legs       source.LegSource
	Cooldowns  CooldownFunc
	Aggregator *edge.Aggregator
	Signals    *source.SignalCache
	Builder    *acca.Builder
	Resolver   *resolve.Resolver
	Calibrator *learning.Calibrator
	Tracker    *track.Tracker
	Snapshots  *snapshot.Store
	Picks      repository.PickRepository
	Builds     repository.BuildRepository
	Redis      *redis.Client
}

// Status represents the engine's current condition
type Status struct {
	Running            bool                          `json:"running"`
	BuildInFlight      bool                          `json:"build_in_flight"`
	SnapshotVersion    int64                         `json:"snapshot_version"`
	SnapshotStatus     models.BuildStatus            `json:"snapshot_status,omitempty"`
	SnapshotAgeSeconds float64                       `json:"snapshot_age_seconds"`
	LastBuild          *models.BuildReport           `json:"last_build,omitempty"`
	PendingPicks       int                           `json:"pending_picks"`
	OpenExposure       float64                       `json:"open_exposure"`
	Cooldowns          map[models.SourceKey]time.Time `json:"cooldowns,omitempty"`
	LastUpdate         time.Time                     `json:"last_update"`
}

// Engine coordinates builds, resolution passes and learning recomputation
type Engine struct {
	cfg        *config.Config
	feed       source.Feed
	providers  []source.Provider
	legs       source.LegSource
	cooldowns  CooldownFunc
	aggregator *edge.Aggregator
	signals    *source.SignalCache
	builder    *acca.Builder
	resolver   *resolve.Resolver
	calibrator *learning.Calibrator
	tracker    *track.Tracker
	store      *snapshot.Store
	picks      repository.PickRepository
	builds     repository.BuildRepository
	redis      *redis.Client
	log        *logrus.Logger
	buildLog   *applogger.BuildLogger
	audit      *applogger.AuditLogger

	mu       sync.Mutex
	running  bool
	building bool
	version  int64
	done     chan struct{}
}

// New creates an Engine from its dependencies
func New(cfg *config.Config, deps Dependencies, log *logrus.Logger) (*Engine, error) {
	switch {
	case deps.Feed == nil:
		return nil, fmt.Errorf("engine: feed is required")
	case deps.Aggregator == nil:
		return nil, fmt.Errorf("engine: aggregator is required")
	case deps.Builder == nil:
		return nil, fmt.Errorf("engine: builder is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("engine: resolver is required")
	case deps.Calibrator == nil:
		return nil, fmt.Errorf("engine: calibrator is required")
	case deps.Tracker == nil:
		return nil, fmt.Errorf("engine: tracker is required")
	case deps.Snapshots == nil:
		return nil, fmt.Errorf("engine: snapshot store is required")
	case deps.Picks == nil:
		return nil, fmt.Errorf("engine: pick repository is required")
	case deps.Builds == nil:
		return nil, fmt.Errorf("engine: build repository is required")
	}

	return &Engine{
		cfg:        cfg,
		feed:       deps.Feed,
		providers:  deps.Providers,
		legs:       deps.Legs,
		cooldowns:  deps.Cooldowns,
		aggregator: deps.Aggregator,
		signals:    deps.Signals,
		builder:    deps.Builder,
		resolver:   deps.Resolver,
		calibrator: deps.Calibrator,
		tracker:    deps.Tracker,
		store:      deps.Snapshots,
		picks:      deps.Picks,
		builds:     deps.Builds,
		redis:      deps.Redis,
		log:        log,
		buildLog:   applogger.NewBuildLogger(log),
		audit:      applogger.NewAuditLogger(log),
		done:       make(chan struct{}),
	}, nil
}

// Start hydrates calibration state, seeds the build version from the audit
// trail, launches the trigger listener and kicks the first build. The first
// build runs asynchronously so startup is not blocked on slow sources.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	if err := e.calibrator.Load(ctx); err != nil {
		e.log.WithError(err).Warn("Failed to load calibration multipliers, starting neutral")
	}

	if reports, err := e.builds.GetRecent(ctx, 1); err != nil {
		e.log.WithError(err).Warn("Failed to seed build version from audit trail")
	} else if len(reports) > 0 {
		e.mu.Lock()
		e.version = reports[0].Version
		e.mu.Unlock()
	}

	go e.ageLoop(ctx)

	if e.redis != nil && e.cfg.Redis.TriggerChannel != "" {
		go e.listenTriggers(ctx)
	}

	go func() {
		if _, err := e.RunBuild(ctx, "startup"); err != nil && !errors.Is(err, ErrBuildInFlight) {
			e.log.WithError(err).Error("Startup build failed")
		}
	}()

	e.log.WithFields(logrus.Fields{
		"providers":      len(e.providers),
		"build_interval": e.cfg.Build.Interval(),
		"build_budget":   e.cfg.Build.Budget(),
	}).Info("Engine started")

	return nil
}

// Stop halts the background loops. In-flight builds run to completion.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.done)
	e.log.Info("Engine stopped")
	return nil
}

// Edges returns the current snapshot's edge signals at or above the quality
// score floor
func (e *Engine) Edges(minQuality float64) []models.EdgeSignal {
	return e.store.Edges(minQuality)
}

// Accumulators returns the current snapshot's ranked accumulators at or
// above the grade floor
func (e *Engine) Accumulators(minGrade models.AccaGrade) []models.Accumulator {
	return e.store.Accumulators(minGrade)
}

// RunResolution executes one settlement pass over unresolved picks
func (e *Engine) RunResolution(ctx context.Context) (*resolve.PassReport, error) {
	report, err := e.resolver.Run(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	e.refreshExposure(ctx)
	return report, nil
}

// RunLearning recomputes calibration multipliers from resolved history.
// Cached signals are invalidated because the multipliers feed quality
// scoring without being part of the cache fingerprint.
func (e *Engine) RunLearning(ctx context.Context) error {
	if err := e.calibrator.Recompute(ctx, time.Now().UTC()); err != nil {
		return err
	}
	if e.signals != nil {
		e.signals.Flush()
	}
	return nil
}

// TrackRecord aggregates resolved-pick statistics for the period
func (e *Engine) TrackRecord(ctx context.Context, start, end time.Time) (*track.Record, error) {
	return e.tracker.Record(ctx, start, end)
}

// LearningAdjustments returns the persisted calibration multipliers
func (e *Engine) LearningAdjustments(ctx context.Context) ([]*models.LearningAdjustment, error) {
	return e.calibrator.Adjustments(ctx)
}

// Status reports the engine's current condition
func (e *Engine) Status(ctx context.Context) *Status {
	e.mu.Lock()
	st := &Status{
		Running:       e.running,
		BuildInFlight: e.building,
		LastUpdate:    time.Now().UTC(),
	}
	e.mu.Unlock()

	st.SnapshotVersion = e.store.Version()
	if snap := e.store.Current(); snap != nil {
		st.SnapshotStatus = snap.Status
		st.SnapshotAgeSeconds = e.store.Age(time.Now().UTC()).Seconds()
	}
	if reports, err := e.builds.GetRecent(ctx, 1); err == nil && len(reports) > 0 {
		st.LastBuild = reports[0]
	}
	if pending, err := e.picks.GetUnresolved(ctx); err == nil {
		st.PendingPicks = len(pending)
	}
	if exposure, err := e.picks.OpenExposure(ctx); err == nil {
		st.OpenExposure = exposure
	}
	if e.cooldowns != nil {
		st.Cooldowns = e.cooldowns()
	}
	return st
}

// refreshExposure updates the pending-pick and open-exposure gauges. Gauge
// staleness is tolerable, so repository errors only log.
func (e *Engine) refreshExposure(ctx context.Context) {
	if pending, err := e.picks.GetUnresolved(ctx); err == nil {
		metrics.UpdatePendingPicks(float64(len(pending)))
	} else {
		e.log.WithError(err).Debug("Failed to refresh pending picks gauge")
	}
	if exposure, err := e.picks.OpenExposure(ctx); err == nil {
		metrics.UpdateOpenExposure(exposure)
	} else {
		e.log.WithError(err).Debug("Failed to refresh open exposure gauge")
	}
}

// ageLoop keeps the snapshot age gauge current between builds
func (e *Engine) ageLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotAgeTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			if e.store.Current() != nil {
				metrics.UpdateSnapshotAge(e.store.Age(time.Now().UTC()).Seconds())
			}
		}
	}
}

// listenTriggers subscribes to the Redis trigger channel and dispatches
// on-demand passes. A trigger arriving during a build coalesces into the
// in-flight one.
func (e *Engine) listenTriggers(ctx context.Context) {
	sub := e.redis.Subscribe(ctx, e.cfg.Redis.TriggerChannel)
	defer sub.Close()

	e.log.WithField("channel", e.cfg.Redis.TriggerChannel).Info("Trigger listener started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case msg, ok := <-ch:
			if !ok {
				e.log.Warn("Trigger subscription closed")
				return
			}
			e.handleTrigger(ctx, msg.Payload)
		}
	}
}

func (e *Engine) handleTrigger(ctx context.Context, payload string) {
	switch payload {
	case TriggerBuild:
		if _, err := e.RunBuild(ctx, "trigger"); err != nil {
			if errors.Is(err, ErrBuildInFlight) {
				e.log.Info("Build trigger coalesced into in-flight build")
				return
			}
			e.log.WithError(err).Error("Triggered build failed")
		}
	case TriggerResolve:
		if _, err := e.RunResolution(ctx); err != nil {
			e.log.WithError(err).Error("Triggered resolution pass failed")
		}
	case TriggerLearning:
		if err := e.RunLearning(ctx); err != nil {
			e.log.WithError(err).Error("Triggered learning recomputation failed")
		}
	default:
		e.log.WithField("payload", payload).Warn("Unknown trigger payload ignored")
	}
}
