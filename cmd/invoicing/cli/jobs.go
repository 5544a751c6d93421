package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/invoicing/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers for the given Redis connection.
func NewJobsCLI(opt asynq.RedisClientOpt) (*JobsCLI, error) {
	client := asynq.NewClient(opt)
	inspector := asynq.NewInspector(opt)
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues an invoice action ("post" or "void") by number.
func (c *JobsCLI) Trigger(ctx context.Context, action, number string) (*asynq.TaskInfo, error) {
	task, err := taskFor(action, number)
	if err != nil {
		return nil, err
	}
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueContext(ctx, task)
}

func taskFor(action, number string) (*asynq.Task, error) {
	switch action {
	case "post":
		return jobs.NewInvoicePostTask(number)
	case "void":
		return jobs.NewInvoiceVoidTask(number)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported action %q", action)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListArchived returns failed invoice tasks. Tasks run with no retries, so
// every failure lands here.
func (c *JobsCLI) ListArchived(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// WriteStats prints stats as an aligned table.
func WriteStats(w io.Writer, s QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "queue\tpending\tactive\tscheduled\tretry\tarchived\n")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	return tw.Flush()
}
