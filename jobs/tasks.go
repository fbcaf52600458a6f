package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
)

const (
	// QueueDefault carries user-facing work such as snapshot refreshes.
	QueueDefault = "default"
	// QueueMaintenance carries periodic housekeeping.
	QueueMaintenance = "maintenance"
	// TaskSnapshotRefresh recomputes the cached UI permission copy of one user.
	TaskSnapshotRefresh = "rbac:snapshot_refresh"
	// TaskSessionPrune deletes expired login session records.
	TaskSessionPrune = "auth:session_prune"
)

// snapshotUniqueTTL bounds how long an identical pending refresh is
// rejected as a duplicate.
const snapshotUniqueTTL = time.Minute

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// queueWeights gives snapshot refreshes priority over housekeeping.
var queueWeights = map[string]int{
	QueueDefault:     6,
	QueueMaintenance: 1,
}

// QueueNames lists the queues the worker consumes, highest priority first.
func QueueNames() []string {
	return []string{QueueDefault, QueueMaintenance}
}

// SnapshotRefreshPayload identifies the user whose snapshot is refreshed.
type SnapshotRefreshPayload struct {
	UserID int64 `json:"user_id"`
}

// NewSnapshotRefreshTask constructs a refresh task for userID.
func NewSnapshotRefreshTask(userID int64) (*asynq.Task, error) {
	if userID < 0 {
		return nil, fmt.Errorf("jobs: snapshot refresh: invalid user id %d", userID)
	}
	data, err := json.Marshal(SnapshotRefreshPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotRefresh, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Unique(snapshotUniqueTTL)), nil
}

// NewSessionPruneTask constructs the periodic session cleanup task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3))
}
