package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoicePost posts a stored invoice on the ERP.
	TaskInvoicePost = "invoice:post"
	// TaskInvoiceVoid voids a posted invoice on the ERP.
	TaskInvoiceVoid = "invoice:void"
	// TaskClaimsCleanup purges expired action claims.
	TaskClaimsCleanup = "maintenance:claims_cleanup"
)

// InvoicePayload identifies the invoice a task acts on.
type InvoicePayload struct {
	Number string `json:"number"`
}

// NewInvoicePostTask builds a post task. Failed posts are reported, never
// retried.
func NewInvoicePostTask(number string) (*asynq.Task, error) {
	return newInvoiceTask(TaskInvoicePost, number)
}

// NewInvoiceVoidTask builds a void task.
func NewInvoiceVoidTask(number string) (*asynq.Task, error) {
	return newInvoiceTask(TaskInvoiceVoid, number)
}

func newInvoiceTask(typ, number string) (*asynq.Task, error) {
	if number == "" {
		return nil, errors.New("jobs: invoice number required")
	}
	body, err := json.Marshal(InvoicePayload{Number: number})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// NewClaimsCleanupTask builds the periodic claim purge task.
func NewClaimsCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskClaimsCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

func decodeInvoicePayload(t *asynq.Task) (InvoicePayload, bool) {
	var payload InvoicePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Number == "" {
		return InvoicePayload{}, false
	}
	return payload, true
}
