package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// serializationRetries bounds how often a RepeatableRead transaction is
// replayed after a 40001 conflict with a concurrent save.
const serializationRetries = 3

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes fn within a RepeatableRead transaction. fn is replayed from
// the start when the commit or any statement fails with a serialization error.
func WithTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		err = runTx(ctx, db, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
