package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
)

// SessionPruner deletes expired session records.
// Satisfied by *auth.PGRepository.
type SessionPruner interface {
	PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionPruneJob handles TaskSessionPrune.
type SessionPruneJob struct {
	Pruner  SessionPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPruneJob wires dependencies for the prune handler.
func NewSessionPruneJob(pruner SessionPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPruneJob {
	return &SessionPruneJob{
		Pruner:  pruner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes session prune tasks.
func (j *SessionPruneJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Pruner == nil {
		return errors.New("session prune: handler not configured")
	}
	tracker := j.metrics().Track(TaskSessionPrune)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskSessionPrune))

	pruned, err := j.Pruner.PruneExpiredSessions(ctx, j.now())
	if err != nil {
		logger.Error("prune sessions", slog.Any("error", err))
		return err
	}
	j.metrics().AddPruned(pruned)
	logger.Info("pruned expired sessions", slog.Int64("sessions", pruned))
	return nil
}

func (j *SessionPruneJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
