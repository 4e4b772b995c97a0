// Package scheduler drives background drains of the offline operation queue:
// it probes connectivity, drains on the offline-to-online edge, and drains
// periodically while online.
package scheduler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/logging"
	"github.com/duetlog/duet/backend/internal/models"
)

// Engine is the queue drain collaborator.
type Engine interface {
	IsOnline(ctx context.Context) bool
	SyncPendingOperations(ctx context.Context) (*models.SyncResult, error)
	PendingOperationCount(ctx context.Context) (int, error)
}

// CacheJanitor evicts stale cached snapshots.
type CacheJanitor interface {
	InvalidateOldCache(ctx context.Context) (int64, error)
}

// Config holds scheduler intervals.
type Config struct {
	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration
	// DrainInterval is how often the queue is drained while online.
	DrainInterval time.Duration
	// DrainTimeout bounds a single drain pass.
	DrainTimeout time.Duration
}

// DefaultConfig returns the default scheduler intervals.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 30 * time.Second,
		DrainInterval: 15 * time.Minute,
		DrainTimeout:  5 * time.Minute,
	}
}

// Scheduler owns the background goroutines around the sync engine.
type Scheduler struct {
	engine  Engine
	janitor CacheJanitor
	cfg     Config

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	isOnline  bool
	lastDrain time.Time
}

// New creates a Scheduler. Zero intervals fall back to DefaultConfig.
func New(engine Engine, janitor CacheJanitor, cfg Config) *Scheduler {
	defaults := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaults.ProbeInterval
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaults.DrainInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}

	return &Scheduler{
		engine:  engine,
		janitor: janitor,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start evicts stale cache entries once, then launches the probe and drain
// loops. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if s.janitor != nil {
		if _, err := s.janitor.InvalidateOldCache(ctx); err != nil {
			logging.Error("startup cache eviction failed", err, nil)
		}
	}

	// Establish the starting edge before the loops run.
	s.setOnline(s.engine.IsOnline(ctx))

	s.wg.Add(2)
	go s.probeLoop(ctx)
	go s.drainLoop(ctx)

	logging.Info("sync scheduler started", logging.Fields{
		"probe_interval": s.cfg.ProbeInterval.String(),
		"drain_interval": s.cfg.DrainInterval.String(),
	})
}

// Stop shuts the loops down and waits for them. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("sync scheduler stopped", nil)
}

// IsRunning reports whether the loops are live.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsOnline reports the last probed connectivity status.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// LastDrainTime returns when the last successful drain finished, zero if
// none has.
func (s *Scheduler) LastDrainTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDrain
}

// TriggerDrain runs a drain pass immediately. A pass already in flight is
// reported as skipped, not an error.
func (s *Scheduler) TriggerDrain(ctx context.Context) {
	s.drain(ctx)
}

// probeLoop checks connectivity and drains on the offline-to-online edge.
func (s *Scheduler) probeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			online := s.engine.IsOnline(ctx)
			if s.setOnline(online) && online {
				logging.Info("connectivity restored, draining queue", nil)
				s.drain(ctx)
			}
		}
	}
}

// drainLoop drains the queue on a slow cadence while online. The engine's
// own exclusion handles overlap with edge-triggered drains.
func (s *Scheduler) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.IsOnline() {
				s.drain(ctx)
			}
		}
	}
}

// setOnline records the probed status and reports whether it changed.
func (s *Scheduler) setOnline(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.isOnline != online
	s.isOnline = online
	if changed {
		logging.Info("connectivity status changed", logging.Fields{"online": online})
	}
	return changed
}

func (s *Scheduler) drain(ctx context.Context) {
	count, err := s.engine.PendingOperationCount(ctx)
	if err != nil {
		logging.Error("failed to count pending operations", err, nil)
		return
	}
	if count == 0 {
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	result, err := s.engine.SyncPendingOperations(drainCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("drain already in progress, skipping", nil)
			return
		}
		logging.Error("queue drain failed", err, nil)
		return
	}

	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()

	logging.Info("queue drain finished", logging.Fields{
		"succeeded": result.SuccessfulOperations,
		"failed":    result.FailedOperations,
	})
}
