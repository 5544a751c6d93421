package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/jobs"
)

func TestTaskForActions(t *testing.T) {
	task, err := taskFor("post", "60001")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskInvoicePost, task.Type())

	task, err = taskFor("void", "60001")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskInvoiceVoid, task.Type())

	_, err = taskFor("print", "60001")
	require.Error(t, err)
}

func TestTriggerWithoutClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), "post", "60001")
	require.EqualError(t, err, "jobs cli: client not configured")
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, QueueStats{Queue: "default", Pending: 2, Archived: 1}))
	require.Contains(t, buf.String(), "default")
	require.Contains(t, buf.String(), "archived")
}
