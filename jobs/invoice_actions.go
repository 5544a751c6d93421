package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	jobmetrics "github.com/odyssey-erp/invoicing/internal/jobs"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

// InvoiceExecutor runs invoice actions against the ERP.
type InvoiceExecutor interface {
	ExecutePost(ctx context.Context, number string) error
	ExecuteVoid(ctx context.Context, number string) error
}

// Claims guards against running one action twice.
type Claims interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// InvoiceHandlers processes invoice tasks.
type InvoiceHandlers struct {
	Executor InvoiceExecutor
	Claims   Claims
	Metrics  *jobmetrics.Metrics
	Logger   zerolog.Logger
}

// Handlers returns the task handlers to register on a Worker.
func (h InvoiceHandlers) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskInvoicePost, Handler: h.HandlePost},
		{Type: TaskInvoiceVoid, Handler: h.HandleVoid},
	}
}

// HandlePost processes TaskInvoicePost tasks.
func (h InvoiceHandlers) HandlePost(ctx context.Context, t *asynq.Task) error {
	return h.run(ctx, t, shared.IdempotencyInvoicePost, h.Executor.ExecutePost)
}

// HandleVoid processes TaskInvoiceVoid tasks.
func (h InvoiceHandlers) HandleVoid(ctx context.Context, t *asynq.Task) error {
	return h.run(ctx, t, shared.IdempotencyInvoiceVoid, h.Executor.ExecuteVoid)
}

func (h InvoiceHandlers) run(ctx context.Context, t *asynq.Task, module string, exec func(context.Context, string) error) error {
	payload, ok := decodeInvoicePayload(t)
	if !ok {
		h.Logger.Error().Str("task", t.Type()).Msg("invalid invoice payload")
		return asynq.SkipRetry
	}
	log := h.Logger.With().Str("task", t.Type()).Str("invoice", payload.Number).Logger()

	if h.Claims != nil {
		if err := h.Claims.Claim(ctx, module, payload.Number); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				h.Metrics.Skip(t.Type())
				log.Info().Msg("duplicate delivery skipped")
				return nil
			}
			return fmt.Errorf("claim %s: %w", payload.Number, err)
		}
	}

	tracker := h.Metrics.Track(t.Type())
	err := tracker.End(exec(ctx, payload.Number))
	if err != nil {
		log.Error().Err(err).Msg("invoice task failed")
		if h.Claims != nil {
			if rerr := h.Claims.Release(ctx, module, payload.Number); rerr != nil {
				log.Warn().Err(rerr).Msg("release claim")
			}
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Info().Msg("invoice task done")
	return nil
}
