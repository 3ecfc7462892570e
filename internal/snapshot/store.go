// Package snapshot holds the engine's current build output. Each build
// replaces the snapshot wholesale behind an RWMutex; readers always see a
// complete, internally consistent build. When a Redis client is supplied the
// snapshot is also mirrored for external consumers and each publication is
// announced on a stream.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
	applogger "github.com/codeplaymaker/marketplaymaker-sub000/internal/logger"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/metrics"
	"github.com/codeplaymaker/marketplaymaker-sub000/internal/models"
)

// Snapshot is one build's complete served output
type Snapshot struct {
	Version      int64                      `json:"version"`
	BuildID      uuid.UUID                  `json:"build_id"`
	Status       models.BuildStatus         `json:"status"`
	Edges        []models.EdgeSignal        `json:"edges"`
	Accumulators []models.Accumulator       `json:"accumulators"`
	Degraded     []models.SourceDegradation `json:"degraded,omitempty"`
	BuiltAt      time.Time                  `json:"built_at"`
}

// Store serves the current snapshot and mirrors publications to Redis. A nil
// client disables the mirror; the engine stays fully functional in-process.
type Store struct {
	cfg      config.RedisConfig
	client   *redis.Client
	log      *logrus.Logger
	buildLog *applogger.BuildLogger

	mu      sync.RWMutex
	current *Snapshot
}

func NewStore(cfg config.RedisConfig, client *redis.Client, log *logrus.Logger) *Store {
	return &Store{cfg: cfg, client: client, log: log, buildLog: applogger.NewBuildLogger(log)}
}

// Current returns the snapshot being served, nil before the first build.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version returns the served snapshot's version, 0 before the first build.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.Version
}

// Age returns how long the served snapshot has been live, 0 before the
// first build.
func (s *Store) Age(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return now.Sub(s.current.BuiltAt)
}

// Edges returns the snapshot's edge signals at or above the quality floor.
func (s *Store) Edges(minQuality float64) []models.EdgeSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	out := make([]models.EdgeSignal, 0, len(s.current.Edges))
	for _, e := range s.current.Edges {
		if e.QualityScore >= minQuality {
			out = append(out, e)
		}
	}
	return out
}

// Accumulators returns the snapshot's accumulators at or above the grade,
// preserving the build's ranking order.
func (s *Store) Accumulators(minGrade models.AccaGrade) []models.Accumulator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	out := make([]models.Accumulator, 0, len(s.current.Accumulators))
	for _, a := range s.current.Accumulators {
		if a.Grade.AtLeast(minGrade) {
			out = append(out, a)
		}
	}
	return out
}

// Publish swaps in a new snapshot and mirrors it. The previous snapshot
// stays authoritative until the swap; mirror failures are logged, never
// propagated, so Redis outages cannot fail a build.
func (s *Store) Publish(ctx context.Context, snap *Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	metrics.UpdateSnapshot(uint64(snap.Version), len(snap.Edges), len(snap.Accumulators))

	s.buildLog.LogSnapshotPublished(snap.Version, string(snap.Status), len(snap.Edges), len(snap.Accumulators))

	if s.client == nil {
		return
	}
	if err := s.mirror(ctx, snap); err != nil {
		s.log.WithFields(logrus.Fields{
			"version": snap.Version,
			"error":   err.Error(),
		}).Warn("Failed to mirror snapshot to redis")
	}
}

func (s *Store) mirror(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ttl := time.Duration(s.cfg.SnapshotTTLSeconds) * time.Second
	if err := s.client.Set(ctx, s.cfg.SnapshotKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot key: %w", err)
	}

	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.StreamKey,
		Values: map[string]interface{}{
			"version":      snap.Version,
			"build_id":     snap.BuildID.String(),
			"status":       string(snap.Status),
			"edges":        len(snap.Edges),
			"accumulators": len(snap.Accumulators),
			"built_at":     snap.BuiltAt.Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish build event: %w", err)
	}
	return nil
}

// Fetch reads the mirrored snapshot from Redis. Used by the CLI so it can
// inspect the engine's output without talking to the engine process.
func Fetch(ctx context.Context, client *redis.Client, key string) (*Snapshot, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
