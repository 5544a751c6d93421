package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Idempotency modules.
const (
	IdempotencyInvoicePost = "invoice.post"
	IdempotencyInvoiceVoid = "invoice.void"
)

// ErrIdempotencyConflict indicates the action was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore records claimed document actions so a posting or voiding
// task delivered twice runs only once.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// IdempotencyKey scopes a document key to a module.
func IdempotencyKey(module, key string) string {
	return fmt.Sprintf("%s:%s", module, key)
}

// Claim inserts the key or reports ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if module == "" || key == "" {
		return errors.New("idempotency module and key required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		IdempotencyKey(module, key), module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Release removes a claim so a failed action can be requested again.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, IdempotencyKey(module, key))
	return err
}

// Cleanup removes claims older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
