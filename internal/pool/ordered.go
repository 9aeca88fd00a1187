package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every index in [0, n). With workers <= 1 the calls
// run sequentially on the calling goroutine; otherwise up to workers calls
// run at once. Callers write results into index-addressed slots, which keeps
// the output in input order whatever the scheduling.
//
// The first error cancels the context handed to the remaining calls and is
// returned. A canceled parent context stops scheduling further indices.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
