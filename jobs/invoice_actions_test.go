package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/invoicing/internal/jobs"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

type fakeExecutor struct {
	posted []string
	voided []string
	err    error
}

func (f *fakeExecutor) ExecutePost(_ context.Context, number string) error {
	f.posted = append(f.posted, number)
	return f.err
}

func (f *fakeExecutor) ExecuteVoid(_ context.Context, number string) error {
	f.voided = append(f.voided, number)
	return f.err
}

type memoryClaims struct {
	keys     map[string]bool
	released []string
}

func newMemoryClaims() *memoryClaims {
	return &memoryClaims{keys: map[string]bool{}}
}

func (m *memoryClaims) Claim(_ context.Context, module, key string) error {
	k := shared.IdempotencyKey(module, key)
	if m.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = true
	return nil
}

func (m *memoryClaims) Release(_ context.Context, module, key string) error {
	k := shared.IdempotencyKey(module, key)
	delete(m.keys, k)
	m.released = append(m.released, k)
	return nil
}

func newHandlers(exec *fakeExecutor, claims Claims) InvoiceHandlers {
	return InvoiceHandlers{
		Executor: exec,
		Claims:   claims,
		Metrics:  jobmetrics.NewMetrics(prometheus.NewRegistry()),
		Logger:   zerolog.Nop(),
	}
}

func TestNewInvoiceTask(t *testing.T) {
	task, err := NewInvoicePostTask("60001")
	require.NoError(t, err)
	require.Equal(t, TaskInvoicePost, task.Type())

	var payload InvoicePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "60001", payload.Number)

	_, err = NewInvoiceVoidTask("")
	require.Error(t, err)
}

func TestHandlePostRunsOnce(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHandlers(exec, newMemoryClaims())
	task, err := NewInvoicePostTask("60001")
	require.NoError(t, err)

	require.NoError(t, h.HandlePost(context.Background(), task))
	require.NoError(t, h.HandlePost(context.Background(), task))
	require.Equal(t, []string{"60001"}, exec.posted)
}

func TestHandleVoidFailureReleasesClaim(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("erp down")}
	claims := newMemoryClaims()
	h := newHandlers(exec, claims)
	task, err := NewInvoiceVoidTask("60002")
	require.NoError(t, err)

	err = h.HandleVoid(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, []string{"invoice.void:60002"}, claims.released)

	exec.err = nil
	require.NoError(t, h.HandleVoid(context.Background(), task))
	require.Equal(t, []string{"60002", "60002"}, exec.voided)
}

func TestHandleRejectsBadPayload(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHandlers(exec, nil)
	err := h.HandlePost(context.Background(), asynq.NewTask(TaskInvoicePost, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, exec.posted)
}

func TestHandlersRegistersBothTasks(t *testing.T) {
	handlers := newHandlers(&fakeExecutor{}, nil).Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, TaskInvoicePost, handlers[0].Type)
	assert.Equal(t, TaskInvoiceVoid, handlers[1].Type)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, zerolog.Nop()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
