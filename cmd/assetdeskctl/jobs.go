package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/assetdesk/assetdesk/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger and inspect background jobs",
}

var jobsRefreshCmd = &cobra.Command{
	Use:   "refresh-snapshot <user-id>...",
	Short: "Queue a permission snapshot refresh for users",
	Long: `Queue rbac:snapshot_refresh tasks. A refresh already queued for the same
user within the uniqueness window is reported as a duplicate.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseUserIDs(args)
		if err != nil {
			return err
		}
		return withJobsCLI(cmd, func(c *JobsCLI) error {
			return c.RefreshSnapshots(cmd.Context(), cmd.OutOrStdout(), ids)
		})
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats [queue]...",
	Short: "Show queue statistics (all worker queues by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		queues := args
		if len(queues) == 0 {
			queues = jobs.QueueNames()
		}
		return withJobsCLI(cmd, func(c *JobsCLI) error {
			for _, queue := range queues {
				stats, err := c.InspectQueue(queue)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			}
			return nil
		})
	},
}

func init() {
	jobsCmd.AddCommand(jobsRefreshCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
}

func withJobsCLI(cmd *cobra.Command, fn func(*JobsCLI) error) error {
	svc, err := openRuntime(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer svc.Close()
	opts := svc.redisOpts()
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	c := NewJobsCLI(client, inspector)
	defer func() { _ = c.Close() }()
	return fn(c)
}

func parseUserIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid user id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// queueInspector is the subset of *asynq.Inspector used by JobsCLI.
type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

type enqueueCloser interface {
	jobs.Enqueuer
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    enqueueCloser
	inspector queueInspector
}

// NewJobsCLI builds the helpers around an asynq client and inspector.
func NewJobsCLI(client enqueueCloser, inspector queueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// RefreshSnapshots enqueues one refresh task per user and reports the
// outcome of each.
func (c *JobsCLI) RefreshSnapshots(ctx context.Context, out io.Writer, userIDs []int64) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	var failed []error
	for _, id := range userIDs {
		task, err := jobs.NewSnapshotRefreshTask(id)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		info, err := c.client.EnqueueContext(ctx, task)
		switch {
		case errors.Is(err, asynq.ErrDuplicateTask):
			_, _ = fmt.Fprintf(out, "user %d: already queued\n", id)
		case err != nil:
			failed = append(failed, fmt.Errorf("user %d: %w", id, err))
		default:
			_, _ = fmt.Fprintf(out, "user %d: queued %s\n", id, info.ID)
		}
	}
	return errors.Join(failed...)
}

// InspectQueue reports the stats of one queue.
func (c *JobsCLI) InspectQueue(queue string) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueue(c.inspector, queue)
}
