package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
	"github.com/assetdesk/assetdesk/internal/rbac"
)

// SnapshotRefresher recomputes a user's permission snapshot.
// Satisfied by *rbac.Service.
type SnapshotRefresher interface {
	RefreshSnapshot(ctx context.Context, userID int64) (rbac.PermissionSet, error)
}

// SnapshotRefreshJob handles TaskSnapshotRefresh.
type SnapshotRefreshJob struct {
	Refresher SnapshotRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSnapshotRefreshJob wires dependencies for the refresh handler.
func NewSnapshotRefreshJob(refresher SnapshotRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle processes snapshot refresh tasks.
func (j *SnapshotRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("snapshot refresh: handler not configured")
	}
	var payload SnapshotRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSnapshotRefresh)
	perms, err := j.Refresher.RefreshSnapshot(ctx, payload.UserID)
	if err != nil {
		j.logger().Error("refresh snapshot", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Debug("snapshot refreshed", slog.Int64("user_id", payload.UserID), slog.Int("permissions", perms.Len()))
	return tracker.End(nil)
}

func (j *SnapshotRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSnapshotRefresh))
	}
	return slog.Default().With(slog.String("job", TaskSnapshotRefresh))
}

func (j *SnapshotRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
