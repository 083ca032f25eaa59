// Package cleanup runs the periodic maintenance sweeps: inactivity-based
// orphan recovery and retention deletion.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/tarsy-core/pkg/config"
)

// Sweeper is the subset of the history service the cleanup loops call.
type Sweeper interface {
	CleanupOrphanedSessions(ctx context.Context, timeoutMinutes int) int
	CleanupOrphanedChats(ctx context.Context, timeoutMinutes int) int
	DeleteSessionsOlderThan(ctx context.Context, cutoffUs int64) int
}

// Service periodically:
//   - fails sessions and releases chats whose owner stopped heartbeating
//   - deletes terminal sessions past the retention period
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	retention *config.RetentionConfig
	queue     *config.QueueConfig
	store     Sweeper
	now       func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	scheduler *cron.Cron
}

// NewService creates a new cleanup service.
func NewService(retention *config.RetentionConfig, queue *config.QueueConfig, store Sweeper) *Service {
	return &Service{
		retention: retention,
		queue:     queue,
		store:     store,
		now:       time.Now,
	}
}

// Start runs both sweeps once and then launches the background loops.
// Retention runs on CleanupSchedule when set, otherwise every
// CleanupInterval.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.every(ctx, s.queue.OrphanDetectionInterval, func() { s.RunOrphanSweep(ctx) })
	}()

	if s.retention.CleanupSchedule != "" {
		s.scheduler = cron.New()
		if _, err := s.scheduler.AddFunc(s.retention.CleanupSchedule, func() { s.EnforceRetention(ctx) }); err != nil {
			slog.Error("Invalid retention schedule, falling back to cleanup interval",
				"schedule", s.retention.CleanupSchedule, "error", err)
			s.scheduler = nil
		}
	}
	if s.scheduler != nil {
		s.EnforceRetention(ctx)
		s.scheduler.Start()
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.every(ctx, s.retention.CleanupInterval, func() { s.EnforceRetention(ctx) })
		}()
	}

	slog.Info("Cleanup service started",
		"session_retention_days", s.retention.SessionRetentionDays,
		"cleanup_interval", s.retention.CleanupInterval,
		"cleanup_schedule", s.retention.CleanupSchedule,
		"orphan_detection_interval", s.queue.OrphanDetectionInterval,
		"orphan_threshold", s.queue.OrphanThreshold)
}

// Stop signals the loops to exit and waits for them to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
		s.scheduler = nil
	}
	s.wg.Wait()
	s.cancel = nil
	slog.Info("Cleanup service stopped")
}

// every runs fn immediately and then on each tick until ctx is done.
func (s *Service) every(ctx context.Context, interval time.Duration, fn func()) {
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RunOrphanSweep fails sessions and releases chats with no activity for
// OrphanThreshold.
func (s *Service) RunOrphanSweep(ctx context.Context) (sessions, chats int) {
	minutes := s.queue.OrphanThresholdMinutes()
	sessions = s.store.CleanupOrphanedSessions(ctx, minutes)
	chats = s.store.CleanupOrphanedChats(ctx, minutes)
	if sessions > 0 || chats > 0 {
		slog.Warn("Orphan sweep: recovered inactive work",
			"sessions", sessions,
			"chats", chats,
			"timeout_minutes", minutes)
	}
	return sessions, chats
}

// EnforceRetention deletes terminal sessions started before the retention
// cutoff.
func (s *Service) EnforceRetention(ctx context.Context) int {
	cutoff := s.now().Add(-s.retention.RetentionPeriod())
	count := s.store.DeleteSessionsOlderThan(ctx, cutoff.UnixMicro())
	if count > 0 {
		slog.Info("Retention: deleted old sessions", "count", count, "cutoff", cutoff)
	}
	return count
}
