package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	jobmetrics "github.com/odyssey-erp/invoicing/internal/jobs"
)

// ClaimsCleanupSchedule runs the claim purge once a day.
const ClaimsCleanupSchedule = "@daily"

// ClaimPurger deletes claims older than a retention window.
type ClaimPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// ClaimsCleanup purges action claims older than Retention.
type ClaimsCleanup struct {
	Purger    ClaimPurger
	Retention time.Duration
	Metrics   *jobmetrics.Metrics
	Logger    zerolog.Logger
}

// Handler returns the task handler to register on a Worker.
func (c ClaimsCleanup) Handler() TaskHandler {
	return TaskHandler{Type: TaskClaimsCleanup, Handler: c.Handle}
}

// Cron returns the schedule entry for the purge.
func (c ClaimsCleanup) Cron() CronRegistration {
	return CronRegistration{Spec: ClaimsCleanupSchedule, Task: NewClaimsCleanupTask()}
}

// Handle processes TaskClaimsCleanup tasks.
func (c ClaimsCleanup) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := c.Metrics.Track(t.Type())
	if err := tracker.End(c.Purger.Cleanup(ctx, c.Retention)); err != nil {
		c.Logger.Warn().Err(err).Msg("claims cleanup failed")
		return err
	}
	c.Logger.Debug().Dur("retention", c.Retention).Msg("claims cleanup done")
	return nil
}
