package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// MaintenanceOps are the recovery sweeps and retention deletion. Every
// sweep is idempotent and returns the number of rows it changed.
type MaintenanceOps struct {
	infra *BaseInfra
}

// NewMaintenanceOps creates maintenance operations on infra.
func NewMaintenanceOps(infra *BaseInfra) *MaintenanceOps {
	return &MaintenanceOps{infra: infra}
}

// Statuses the inactivity sweep may fail. Pending rows have no owner and
// paused rows wait on a human, so neither goes stale.
var orphanableStatuses = []models.SessionStatus{
	models.SessionStatusInProgress,
	models.SessionStatusCanceling,
}

// CleanupOrphanedSessions fails sessions whose last interaction is older
// than timeoutMinutes, along with their pending and active stages.
func (o *MaintenanceOps) CleanupOrphanedSessions(ctx context.Context, timeoutMinutes int) int {
	cutoff := time.Now().Add(-time.Duration(timeoutMinutes) * time.Minute).UnixMicro()
	message := fmt.Sprintf("Session became unresponsive (no activity for %d minutes)", timeoutMinutes)

	n, ok := RetryDatabaseOperation(ctx, o.infra, "cleanup_orphaned_sessions", func(ctx context.Context) (int, error) {
		where := entsql.And(
			entsql.In("status", statusArgs(orphanableStatuses)...),
			entsql.NotNull("last_interaction_at"),
			entsql.LT("last_interaction_at", cutoff),
		)
		return o.infra.repo().failSessions(ctx, where, orphanableStatuses, message)
	})
	if ok && n > 0 {
		slog.Warn("Marked orphaned sessions as failed", "count", n, "timeout_minutes", timeoutMinutes)
		o.infra.Metrics().OrphansRecovered.Add(ctx, int64(n))
	}
	return n
}

// MarkPodSessionsInterrupted fails the in-progress sessions owned by podID.
// Run it when the pod shuts down, and at startup for rows a previous
// process with the same pod id left behind. Canceling rows are left to
// CleanupOrphanedSessions.
func (o *MaintenanceOps) MarkPodSessionsInterrupted(ctx context.Context, podID string) int {
	message := fmt.Sprintf("Session interrupted during pod '%s' shutdown", podID)
	guard := []models.SessionStatus{models.SessionStatusInProgress}

	n, ok := RetryDatabaseOperation(ctx, o.infra, "mark_pod_sessions_interrupted", func(ctx context.Context) (int, error) {
		where := entsql.And(
			entsql.EQ("pod_id", podID),
			entsql.EQ("status", string(models.SessionStatusInProgress)),
		)
		return o.infra.repo().failSessions(ctx, where, guard, message)
	})
	if ok && n > 0 {
		slog.Warn("Marked pod sessions as interrupted", "pod_id", podID, "count", n)
		o.infra.Metrics().PodSweepRecovered.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("pod_id", podID)))
	}
	return n
}

// CleanupOrphanedChats releases chats whose owner stopped touching them.
// Chats have no failed state; they simply become claimable again.
func (o *MaintenanceOps) CleanupOrphanedChats(ctx context.Context, timeoutMinutes int) int {
	cutoff := time.Now().Add(-time.Duration(timeoutMinutes) * time.Minute).UnixMicro()
	n, ok := RetryDatabaseOperation(ctx, o.infra, "cleanup_orphaned_chats", func(ctx context.Context) (int, error) {
		return o.infra.repo().resetChats(ctx, entsql.And(
			entsql.NotNull("pod_id"),
			entsql.NotNull("last_interaction_at"),
			entsql.LT("last_interaction_at", cutoff),
		))
	})
	if ok && n > 0 {
		slog.Warn("Released orphaned chats", "count", n, "timeout_minutes", timeoutMinutes)
	}
	return n
}

// MarkPodChatsInterrupted releases every chat owned by podID.
func (o *MaintenanceOps) MarkPodChatsInterrupted(ctx context.Context, podID string) int {
	n, ok := RetryDatabaseOperation(ctx, o.infra, "mark_pod_chats_interrupted", func(ctx context.Context) (int, error) {
		return o.infra.repo().resetChats(ctx, entsql.EQ("pod_id", podID))
	})
	if ok && n > 0 {
		slog.Info("Released pod chats", "pod_id", podID, "count", n)
	}
	return n
}

// DeleteSessionsOlderThan deletes terminal sessions started before cutoffUs.
// Stages, interactions and chats go with them through ON DELETE CASCADE.
func (o *MaintenanceOps) DeleteSessionsOlderThan(ctx context.Context, cutoffUs int64) int {
	n, ok := RetryDatabaseOperation(ctx, o.infra, "delete_sessions_older_than", func(ctx context.Context) (int, error) {
		return o.infra.repo().deleteSessionsStartedBefore(ctx, cutoffUs)
	})
	if ok && n > 0 {
		slog.Info("Deleted expired sessions", "count", n, "cutoff", models.UsToTime(cutoffUs))
		o.infra.Metrics().SessionsPurged.Add(ctx, int64(n))
	}
	return n
}
