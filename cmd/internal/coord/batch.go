package coord

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultBatchWindow is how long ids accumulate before one combined fetch.
const DefaultBatchWindow = 50 * time.Millisecond

// BatchFetch loads every record whose id is in ids.
type BatchFetch[T any] func(ctx context.Context, ids []string) ([]T, error)

// Batcher merges by-id lookups that arrive within one window into a single
// fetch per collection.
type Batcher[T any] struct {
	window   time.Duration
	idOf     func(T) string
	obs      Observer
	schedule func(time.Duration, func())

	mu      sync.Mutex
	pending map[string]*batch[T]
}

type batch[T any] struct {
	ctx   context.Context
	fetch BatchFetch[T]
	ids   []string
	seen  map[string]struct{}

	done    chan struct{}
	results []T
	err     error
}

// BatcherOption configures a Batcher.
type BatcherOption[T any] func(*Batcher[T])

// WithWindow overrides DefaultBatchWindow.
func WithWindow[T any](d time.Duration) BatcherOption[T] {
	return func(b *Batcher[T]) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithBatchObserver attaches a metrics observer.
func WithBatchObserver[T any](o Observer) BatcherOption[T] {
	return func(b *Batcher[T]) { b.obs = o }
}

// withScheduler replaces the flush timer; tests drive flushes by hand.
func withScheduler[T any](fn func(time.Duration, func())) BatcherOption[T] {
	return func(b *Batcher[T]) { b.schedule = fn }
}

// NewBatcher constructs a Batcher. idOf extracts the id used to route results
// back to callers.
func NewBatcher[T any](idOf func(T) string, opts ...BatcherOption[T]) *Batcher[T] {
	b := &Batcher[T]{
		window:  DefaultBatchWindow,
		idOf:    idOf,
		pending: make(map[string]*batch[T]),
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Load returns the records for ids, fetched together with every other id
// requested for collection in the same window. The first caller's fetch is the
// one executed. A fetch error is returned to every caller in the batch.
func (b *Batcher[T]) Load(ctx context.Context, collection string, ids []string, fetch BatchFetch[T]) ([]T, error) {
	if b == nil || b.idOf == nil {
		return nil, errors.New("coord: nil batcher")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	b.mu.Lock()
	bt, ok := b.pending[collection]
	if !ok {
		bt = &batch[T]{
			ctx:   context.WithoutCancel(ctx),
			fetch: fetch,
			seen:  make(map[string]struct{}),
			done:  make(chan struct{}),
		}
		b.pending[collection] = bt
	}
	for _, id := range ids {
		if _, dup := bt.seen[id]; dup {
			continue
		}
		bt.seen[id] = struct{}{}
		bt.ids = append(bt.ids, id)
	}
	b.mu.Unlock()

	if !ok {
		b.schedule(b.window, func() { b.flush(collection, bt) })
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-bt.done:
	}
	if bt.err != nil {
		return nil, bt.err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]T, 0, len(ids))
	for _, r := range bt.results {
		if _, ok := want[b.idOf(r)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *Batcher[T]) flush(collection string, bt *batch[T]) {
	b.mu.Lock()
	if b.pending[collection] == bt {
		delete(b.pending, collection)
	}
	ids := append([]string(nil), bt.ids...)
	b.mu.Unlock()

	if b.obs != nil {
		b.obs.BatchFlushed(collection, len(ids))
	}
	bt.results, bt.err = bt.fetch(bt.ctx, ids)
	close(bt.done)
}

// pendingIDs reports the ids queued for collection.
func (b *Batcher[T]) pendingIDs(collection string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bt, ok := b.pending[collection]; ok {
		return append([]string(nil), bt.ids...)
	}
	return nil
}
