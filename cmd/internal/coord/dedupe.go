// Package coord collapses concurrent remote reads: identical in-flight queries
// are deduplicated, and by-id lookups are batched per collection.
package coord

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Observer receives coordinator events for metrics.
type Observer interface {
	DedupeShared(key string)
	BatchFlushed(collection string, ids int)
}

// Coordinator holds the in-flight request table.
type Coordinator struct {
	group singleflight.Group
	obs   Observer
}

// New constructs a Coordinator. obs may be nil.
func New(obs Observer) *Coordinator {
	return &Coordinator{obs: obs}
}

// Dedupe runs fetch at most once per key among overlapping callers; all of them
// observe the same result. The key is released once fetch settles.
//
// fetch runs detached from the caller's cancellation so that one caller giving
// up does not fail the others. A canceled caller stops waiting and gets ctx.Err().
func Dedupe[T any](ctx context.Context, c *Coordinator, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fetch(ctx)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared && c.obs != nil {
			c.obs.DedupeShared(key)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Val == nil {
			return zero, nil
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("coord: key %q shared by mismatched result types", key)
		}
		return v, nil
	}
}
