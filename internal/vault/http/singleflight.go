package vaulthttp

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// sharedRead collapses concurrent identical reads within group. A caller
// whose context ends stops waiting; the shared call itself keeps running for
// the others.
func sharedRead[T any](ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	resultChan := group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
