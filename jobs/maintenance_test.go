package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/invoicing/internal/jobs"
)

type fakePurger struct {
	windows []time.Duration
	err     error
}

func (f *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.windows = append(f.windows, olderThan)
	return f.err
}

func TestClaimsCleanup(t *testing.T) {
	purger := &fakePurger{}
	c := ClaimsCleanup{
		Purger:    purger,
		Retention: 72 * time.Hour,
		Metrics:   jobmetrics.NewMetrics(prometheus.NewRegistry()),
		Logger:    zerolog.Nop(),
	}

	require.Equal(t, TaskClaimsCleanup, c.Handler().Type)
	cron := c.Cron()
	require.Equal(t, "@daily", cron.Spec)
	require.Equal(t, TaskClaimsCleanup, cron.Task.Type())

	require.NoError(t, c.Handle(context.Background(), NewClaimsCleanupTask()))
	require.Equal(t, []time.Duration{72 * time.Hour}, purger.windows)

	purger.err = errors.New("db down")
	require.EqualError(t, c.Handle(context.Background(), NewClaimsCleanupTask()), "db down")
}
