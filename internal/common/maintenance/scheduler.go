package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patconext-data/internal/common/db"
	"github.com/patconext-data/internal/common/logger"
)

// ErrRefreshInProgress is returned by TriggerCleanup while a refresh is
// storing a version.
var ErrRefreshInProgress = errors.New("refresh in progress")

// CleanupScheduler prunes old timetable versions on an interval.
type CleanupScheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	config      SchedulerConfig
	isRunning   bool
	mu          sync.RWMutex
	cancelFn    context.CancelFunc
	refreshes   atomic.Int32 // refreshes currently storing a version
}

type SchedulerConfig struct {
	CleanupInterval      time.Duration
	InitialDelay         time.Duration
	KeepInactiveVersions int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CleanupInterval:      24 * time.Hour,
		InitialDelay:         5 * time.Minute,
		KeepInactiveVersions: 3,
	}
}

func NewCleanupScheduler(database *db.DB, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: New(database, logger),
		logger:      logger,
		config:      config,
	}
}

// Start begins the cleanup scheduling
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}
	if s.config.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.config.CleanupInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.isRunning = true

	s.logger.Info("Starting cleanup scheduler",
		"interval", s.config.CleanupInterval,
		"keep_inactive_versions", s.config.KeepInactiveVersions)

	go s.cleanupLoop(ctx)

	return nil
}

func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	if s.cancelFn != nil {
		s.cancelFn()
	}

	s.isRunning = false
	s.logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LockForRefresh holds off cleanup while a refresh stores a version.
func (s *CleanupScheduler) LockForRefresh() {
	s.refreshes.Add(1)
}

func (s *CleanupScheduler) UnlockAfterRefresh() {
	s.refreshes.Add(-1)
}

func (s *CleanupScheduler) canPerformCleanup() bool {
	return s.refreshes.Load() == 0
}

func (s *CleanupScheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	delay := s.config.InitialDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	initialDelay := time.NewTimer(delay)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup loop stopping")
			return

		case <-initialDelay.C:
			s.performCleanup(ctx)

		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) {
	if !s.canPerformCleanup() {
		s.logger.Debug("Skipping version cleanup - refresh in progress")
		return
	}

	start := time.Now()
	results, err := s.maintenance.CleanupOldVersions(ctx, s.config.KeepInactiveVersions)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Timetable version cleanup failed",
			"error", err,
			"duration", duration)
		return
	}
	s.logger.Info("Timetable version cleanup completed",
		"duration", duration,
		"versions_deleted", len(results))
}

// TriggerCleanup runs one cleanup pass now.
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) ([]VersionCleanupResult, error) {
	if !s.canPerformCleanup() {
		return nil, fmt.Errorf("cannot perform cleanup: %w", ErrRefreshInProgress)
	}
	return s.maintenance.CleanupOldVersions(ctx, s.config.KeepInactiveVersions)
}

// GetStatus returns the current status of the cleanup scheduler
func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"is_running":             s.isRunning,
		"is_refresh_in_progress": !s.canPerformCleanup(),
		"interval":               s.config.CleanupInterval.String(),
		"keep_inactive_versions": s.config.KeepInactiveVersions,
	}
}
