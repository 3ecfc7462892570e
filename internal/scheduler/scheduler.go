// Package scheduler wraps robfig/cron for the engine's periodic passes:
// builds, resolution and learning recomputation run as named UTC jobs.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs named jobs on cron schedules in UTC
type Scheduler struct {
	cron            *cron.Cron
	log             *logrus.Logger
	mu              sync.RWMutex
	running         bool
	jobs            map[string]cron.EntryID
	gracefulTimeout time.Duration
}

// New creates a Scheduler
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		log:             log,
		jobs:            make(map[string]cron.EntryID),
		gracefulTimeout: 30 * time.Second,
	}
}

// AddJob registers a named job with a cron spec ("@every 15m" or standard
// five-field syntax). Jobs must be added before Start. A panic inside fn is
// recovered and logged so one bad pass cannot kill the daemon.
func (s *Scheduler) AddJob(name, spec string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithFields(logrus.Fields{
					"job":   name,
					"panic": r,
				}).Error("Scheduled job panicked")
			}
		}()
		started := time.Now()
		fn()
		s.log.WithFields(logrus.Fields{
			"job":      name,
			"duration": time.Since(started),
		}).Debug("Scheduled job finished")
	}

	entryID, err := s.cron.AddFunc(spec, wrapped)
	if err != nil {
		return fmt.Errorf("failed to add job %q: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.WithFields(logrus.Fields{
		"job":  name,
		"spec": spec,
	}).Info("Job scheduled")

	return nil
}

// Start begins running the scheduled jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.running = true
	s.log.WithField("jobs", len(s.jobs)).Info("Scheduler started")

	return nil
}

// Stop halts scheduling and drains running jobs, waiting up to the graceful
// timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.gracefulTimeout):
		s.log.Warn("Scheduler stop timed out waiting for running jobs")
	}

	s.running = false
	s.log.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the soonest upcoming run across all jobs, zero when the
// scheduler is not running
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return time.Time{}
	}

	next := time.Time{}
	for _, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

// JobNames returns the registered job names
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
