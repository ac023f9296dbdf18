package coord

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type record struct {
	ID   string
	Name string
}

func TestDedupe_ConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()

	c := New(nil)
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"hydrafacial", "massage"}, nil
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([][]string, n)
		errs    = make([]error, n)
	)
	started.Add(n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = Dedupe(context.Background(), c, "services:all", fetch)
		}(i)
	}
	started.Wait()
	// Give every goroutine time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch calls=%d want=1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(results[i]) != 2 || results[i][0] != "hydrafacial" {
			t.Fatalf("caller %d: %v", i, results[i])
		}
	}
}

func TestDedupe_KeyReleasedAfterSettle(t *testing.T) {
	t.Parallel()

	c := New(nil)
	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	a, _ := Dedupe(context.Background(), c, "k", fetch)
	b, _ := Dedupe(context.Background(), c, "k", fetch)
	if a != 1 || b != 2 || calls != 2 {
		t.Fatalf("sequential calls must not share: a=%d b=%d calls=%d", a, b, calls)
	}
}

func TestDedupe_ErrorPropagatesAndReleases(t *testing.T) {
	t.Parallel()

	c := New(nil)
	boom := errors.New("boom")

	_, err := Dedupe(context.Background(), c, "k", func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	v, err := Dedupe(context.Background(), c, "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("retry after failure: v=%d err=%v", v, err)
	}
}

func TestDedupe_CanceledCallerDoesNotCancelFetch(t *testing.T) {
	t.Parallel()

	c := New(nil)
	release := make(chan struct{})
	fetchErr := make(chan error, 1)

	fetch := func(ctx context.Context) (int, error) {
		<-release
		fetchErr <- ctx.Err()
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Dedupe(ctx, c, "k", fetch)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("caller err=%v want canceled", err)
	}

	close(release)
	if err := <-fetchErr; err != nil {
		t.Fatalf("fetch saw ctx err=%v", err)
	}
}

type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualScheduler) schedule(_ time.Duration, fn func()) {
	m.mu.Lock()
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
}

func (m *manualScheduler) fire(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.fns) == 0 {
		m.mu.Unlock()
		t.Fatalf("no flush scheduled")
	}
	fn := m.fns[0]
	m.fns = m.fns[1:]
	m.mu.Unlock()
	fn()
}

func (m *manualScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

func waitPending(t *testing.T, b *Batcher[record], collection string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(b.pendingIDs(collection)) == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pending ids never reached %d: %v", n, b.pendingIDs(collection))
}

func TestBatcher_UnionFetchAndDistribution(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	b := NewBatcher(func(r record) string { return r.ID }, withScheduler[record](sched.schedule))

	var (
		calls  int
		gotIDs []string
	)
	fetch := func(_ context.Context, ids []string) ([]record, error) {
		calls++
		gotIDs = append([]string(nil), ids...)
		out := make([]record, 0, len(ids))
		for _, id := range ids {
			out = append(out, record{ID: id, Name: "svc-" + id})
		}
		return out, nil
	}

	type result struct {
		recs []record
		err  error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		r, err := b.Load(context.Background(), "services", []string{"a", "b"}, fetch)
		first <- result{r, err}
	}()
	waitPending(t, b, "services", 2)

	go func() {
		r, err := b.Load(context.Background(), "services", []string{"b", "c"}, fetch)
		second <- result{r, err}
	}()
	waitPending(t, b, "services", 3)

	if sched.count() != 1 {
		t.Fatalf("scheduled flushes=%d want=1", sched.count())
	}
	sched.fire(t)

	r1, r2 := <-first, <-second
	if r1.err != nil || r2.err != nil {
		t.Fatalf("errs: %v %v", r1.err, r2.err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls=%d want=1", calls)
	}
	sort.Strings(gotIDs)
	if len(gotIDs) != 3 || gotIDs[0] != "a" || gotIDs[1] != "b" || gotIDs[2] != "c" {
		t.Fatalf("fetched ids=%v want union [a b c]", gotIDs)
	}
	if len(r1.recs) != 2 || r1.recs[0].ID != "a" || r1.recs[1].ID != "b" {
		t.Fatalf("first caller got %+v", r1.recs)
	}
	if len(r2.recs) != 2 || r2.recs[0].ID != "b" || r2.recs[1].ID != "c" {
		t.Fatalf("second caller got %+v", r2.recs)
	}
}

func TestBatcher_ErrorRejectsAllCallers(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	b := NewBatcher(func(r record) string { return r.ID }, withScheduler[record](sched.schedule))
	boom := errors.New("store down")
	fetch := func(context.Context, []string) ([]record, error) { return nil, boom }

	errs := make(chan error, 2)
	go func() {
		_, err := b.Load(context.Background(), "locations", []string{"x"}, fetch)
		errs <- err
	}()
	waitPending(t, b, "locations", 1)
	go func() {
		_, err := b.Load(context.Background(), "locations", []string{"y"}, fetch)
		errs <- err
	}()
	waitPending(t, b, "locations", 2)

	sched.fire(t)
	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("caller %d err=%v", i, err)
		}
	}
}

func TestBatcher_NewWindowAfterFlush(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	b := NewBatcher(func(r record) string { return r.ID }, withScheduler[record](sched.schedule))
	var calls atomic.Int32
	fetch := func(_ context.Context, ids []string) ([]record, error) {
		calls.Add(1)
		out := make([]record, 0, len(ids))
		for _, id := range ids {
			out = append(out, record{ID: id})
		}
		return out, nil
	}

	for i, id := range []string{"a", "b"} {
		done := make(chan []record, 1)
		go func() {
			r, _ := b.Load(context.Background(), "services", []string{id}, fetch)
			done <- r
		}()
		waitPending(t, b, "services", 1)
		sched.fire(t)
		if r := <-done; len(r) != 1 || r[0].ID != id {
			t.Fatalf("round %d got %+v", i, r)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("fetch calls=%d want=2", calls.Load())
	}
}

func TestBatcher_CollectionsAreIndependent(t *testing.T) {
	t.Parallel()

	sched := &manualScheduler{}
	b := NewBatcher(func(r record) string { return r.ID }, withScheduler[record](sched.schedule))
	fetch := func(_ context.Context, ids []string) ([]record, error) {
		return []record{{ID: ids[0]}}, nil
	}

	go func() { _, _ = b.Load(context.Background(), "services", []string{"a"}, fetch) }()
	go func() { _, _ = b.Load(context.Background(), "locations", []string{"a"}, fetch) }()
	waitPending(t, b, "services", 1)
	waitPending(t, b, "locations", 1)

	if sched.count() != 2 {
		t.Fatalf("scheduled=%d want=2", sched.count())
	}
	sched.fire(t)
	sched.fire(t)
}

func TestBatcher_RealTimer(t *testing.T) {
	t.Parallel()

	b := NewBatcher(func(r record) string { return r.ID }, WithWindow[record](5*time.Millisecond))
	got, err := b.Load(context.Background(), "services", []string{"a"}, func(_ context.Context, ids []string) ([]record, error) {
		return []record{{ID: "a"}, {ID: "zzz"}}, nil
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestBatcher_EmptyIDs(t *testing.T) {
	t.Parallel()

	b := NewBatcher(func(r record) string { return r.ID })
	got, err := b.Load(context.Background(), "services", nil, func(context.Context, []string) ([]record, error) {
		t.Fatalf("fetch must not run")
		return nil, nil
	})
	if err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
