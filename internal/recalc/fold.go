package recalc

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FoldOrdered fetches one result per item concurrently, then folds the results
// strictly in item order. The outcome never depends on completion order.
func FoldOrdered[T, R, A any](ctx context.Context, items []T, fetch func(context.Context, T) (R, error), init A, fold func(A, R) A) (A, error) {
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			r, err := fetch(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return init, err
	}
	acc := init
	for _, r := range results {
		acc = fold(acc, r)
	}
	return acc, nil
}
