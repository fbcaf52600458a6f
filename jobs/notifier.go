package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
)

// Enqueuer submits tasks. Satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SnapshotNotifier schedules a snapshot refresh for every user whose
// permissions changed.
type SnapshotNotifier struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewSnapshotNotifier constructs a SnapshotNotifier.
func NewSnapshotNotifier(enqueuer Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &SnapshotNotifier{enqueuer: enqueuer, logger: logger, metrics: metrics}
}

// NotifyPermissionsChanged enqueues one refresh task per user. A refresh
// already pending for a user is not duplicated. Failures are joined and
// returned after every user was attempted.
func (n *SnapshotNotifier) NotifyPermissionsChanged(ctx context.Context, userIDs ...int64) error {
	var errs []error
	for _, id := range userIDs {
		task, err := NewSnapshotRefreshTask(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = n.enqueuer.EnqueueContext(ctx, task)
		switch {
		case err == nil:
			n.metrics.AddEnqueued(TaskSnapshotRefresh, jobmetrics.OutcomeEnqueued)
		case errors.Is(err, asynq.ErrDuplicateTask):
			n.metrics.AddEnqueued(TaskSnapshotRefresh, jobmetrics.OutcomeDuplicate)
		default:
			n.metrics.AddEnqueued(TaskSnapshotRefresh, jobmetrics.OutcomeFailed)
			n.logger.Warn("enqueue snapshot refresh", slog.Int64("user_id", id), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
