package scoped

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errTest = errors.New("test cancel reason")

const settle = 50 * time.Millisecond

func waitForWaiters[K comparable](t *testing.T, table *Table[K], n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return table.Stats().Waiters == n
	}, 2*time.Second, time.Millisecond)
}

func waitForSubscribers[K comparable](t *testing.T, table *Table[K], n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return table.Stats().Subscribers == n
	}, 2*time.Second, time.Millisecond)
}

func TestMutualExclusion(t *testing.T) {
	table := NewTable[string]()
	var running, maxRunning, total atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for range 64 {
		g.Go(func() error {
			return table.Do(ctx, []string{"db", "users"}, func(context.Context) error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				total.Add(1)
				running.Add(-1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, int32(64), total.Load())
	assert.False(t, table.IsActive("db", "users"))
	assert.Equal(t, Stats{}, table.Stats())
}

func TestFIFOOrder(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	first, err := table.Acquire(ctx, "scope")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := table.Do(ctx, []string{"scope"}, func(context.Context) error {
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
		waitForWaiters(t, table, i)
	}
	assert.Equal(t, 3, table.Waiters("scope"))
	assert.Zero(t, table.Waiters("other"))

	first.Release()
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Zero(t, table.Waiters("scope"))
}

func TestIsActiveLifecycle(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	assert.False(t, table.IsActive("k"))

	h1, err := table.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, table.IsActive("k"))
	assert.False(t, table.IsActive("k", "sub"))

	got := make(chan *Handle[string], 1)
	go func() {
		h, err := table.Acquire(ctx, "k")
		assert.NoError(t, err)
		got <- h
	}()
	waitForWaiters(t, table, 1)

	h1.Release()
	h2 := <-got
	assert.True(t, table.IsActive("k"))

	h1.Release() // idempotent, must not release h2's grant
	assert.True(t, table.IsActive("k"))

	h2.Dispose()
	assert.False(t, table.IsActive("k"))
	assert.Empty(t, table.Scopes())
}

func TestCancelQueuedKeepsOrder(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	holder, err := table.Acquire(ctx, "s")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	enqueue := func(ctx context.Context, name string) <-chan error {
		done := make(chan error, 1)
		go func() {
			done <- table.Do(ctx, []string{"s"}, func(context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			})
		}()
		return done
	}

	a := enqueue(ctx, "a")
	waitForWaiters(t, table, 1)
	cctx, cancel := context.WithCancelCause(ctx)
	b := enqueue(cctx, "b")
	waitForWaiters(t, table, 2)
	c := enqueue(ctx, "c")
	waitForWaiters(t, table, 3)

	cancel(errTest)
	errB := <-b
	assert.ErrorIs(t, errB, ErrCancelled)
	assert.ErrorIs(t, errB, errTest)
	waitForWaiters(t, table, 2)
	assert.True(t, table.IsActive("s"))

	holder.Release()
	require.NoError(t, <-a)
	require.NoError(t, <-c)
	assert.Equal(t, []string{"a", "c"}, order)
	assert.False(t, table.IsActive("s"))
}

func TestAcquireWithFiredToken(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	holder, err := table.Acquire(ctx, "X")
	require.NoError(t, err)

	cctx, cancel := context.WithCancelCause(ctx)
	cancel(errTest)

	h, err := table.Acquire(cctx, "X")
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, errTest)
	assert.True(t, table.IsActive("X"))
	assert.Equal(t, 0, table.Stats().Waiters)

	// A fired token fails even when the scope is idle.
	_, err = table.Acquire(cctx, "Y")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, table.IsActive("Y"))

	holder.Release()
	assert.False(t, table.IsActive("X"))
}

func TestCancelAfterGrantIsNoop(t *testing.T) {
	table := NewTable[string]()
	cctx, cancel := context.WithCancelCause(context.Background())

	h, err := table.Acquire(cctx, "k")
	require.NoError(t, err)
	cancel(errTest)

	assert.True(t, table.IsActive("k"))
	h.Release()
	assert.False(t, table.IsActive("k"))
}

func TestDoReleasesOnFailure(t *testing.T) {
	table := NewTable[string]()
	boom := errors.New("boom")

	err := table.Do(context.Background(), []string{"k"}, func(context.Context) error {
		assert.True(t, table.IsActive("k"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, table.IsActive("k"))

	assert.Panics(t, func() {
		_ = table.Do(context.Background(), []string{"k"}, func(context.Context) error {
			panic("body panic")
		})
	})
	assert.False(t, table.IsActive("k"))
}

func TestDoNilCallback(t *testing.T) {
	table := NewTable[string]()
	holder, err := table.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer holder.Release()

	assert.ErrorIs(t, table.Do(context.Background(), []string{"k"}, nil), ErrNilCallback)
	_, err = Run[string, int](context.Background(), table, []string{"k"}, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
	assert.Equal(t, 0, table.Stats().Waiters)
}

func TestRunReturnsValue(t *testing.T) {
	table := NewTable[int]()
	v, err := Run(context.Background(), table, []int{1, 2}, func(context.Context) (string, error) {
		return "something", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "something", v)
	assert.False(t, table.IsActive(1, 2))
}

func TestDoCancelledBeforeGrantSkipsBody(t *testing.T) {
	table := NewTable[string]()
	holder, err := table.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ran := false
	err = table.Do(ctx, []string{"k"}, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	holder.Release()
	assert.False(t, table.IsActive("k"))
}

func TestWaitForReleaseIdle(t *testing.T) {
	table := NewTable[string]()
	require.NoError(t, table.WaitForRelease(context.Background(), "never", "locked"))
}

func TestWaitForReleaseWaitsForQueue(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	h1, err := table.Acquire(ctx, "k")
	require.NoError(t, err)

	failing := make(chan error, 1)
	go func() {
		failing <- table.Do(ctx, []string{"k"}, func(context.Context) error {
			return errors.New("some error")
		})
	}()
	waitForWaiters(t, table, 1)

	var released atomic.Bool
	go func() {
		assert.NoError(t, table.WaitForRelease(ctx, "k"))
		released.Store(true)
	}()
	waitForSubscribers(t, table, 1)

	third := make(chan *Handle[string], 1)
	go func() {
		h, err := table.Acquire(ctx, "k")
		assert.NoError(t, err)
		third <- h
	}()
	waitForWaiters(t, table, 2)

	assert.Never(t, released.Load, settle, time.Millisecond)

	h1.Release()
	assert.Error(t, <-failing)
	h3 := <-third
	assert.Never(t, released.Load, settle, time.Millisecond)

	h3.Release()
	assert.Eventually(t, released.Load, time.Second, time.Millisecond)
	assert.Equal(t, Stats{}, table.Stats())
}

func TestWaitForReleaseCancelled(t *testing.T) {
	table := NewTable[string]()
	h, err := table.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() { done <- table.WaitForRelease(ctx, "k") }()
	waitForSubscribers(t, table, 1)

	cancel(errTest)
	err = <-done
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, 0, table.Stats().Subscribers)
	assert.True(t, table.IsActive("k"))

	h.Release()
	assert.False(t, table.IsActive("k"))
}

func TestTryAcquire(t *testing.T) {
	table := NewTable[string]()

	h, ok := table.TryAcquire("k")
	require.True(t, ok)
	_, ok = table.TryAcquire("k")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Stats().Waiters)

	h.Release()
	h2, ok := table.TryAcquire("k")
	require.True(t, ok)
	h2.Release()
}

func TestScopesAreIndependent(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()

	h1, err := table.Acquire(ctx, "a", "b")
	require.NoError(t, err)
	h2, err := table.Acquire(ctx, "a")
	require.NoError(t, err)
	h3, err := table.Acquire(ctx)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"a"}, nil}, table.Scopes())
	assert.Equal(t, []string{"a", "b"}, h1.Scope())

	h1.Release()
	h2.Release()
	h3.Release()
	assert.Equal(t, Stats{}, table.Stats())
}

func TestScopeChurnReclaimsEntries(t *testing.T) {
	table := NewTable[string]()
	g, ctx := errgroup.WithContext(context.Background())
	for i := range 200 {
		g.Go(func() error {
			return table.Do(ctx, []string{"tenant", fmt.Sprint(i % 7), fmt.Sprint(i)}, func(context.Context) error {
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, Stats{}, table.Stats())
	assert.Empty(t, table.Scopes())
}

func TestDefaultTableIdentityScopes(t *testing.T) {
	type resource struct{ name string }
	r1, r2 := &resource{"db"}, &resource{"db"}
	ctx := context.Background()

	h, err := AcquireLock(ctx, r1, "key")
	require.NoError(t, err)
	defer h.Release()

	assert.True(t, IsLockActive(r1, "key"))
	assert.False(t, IsLockActive(r2, "key"))

	ran := false
	require.NoError(t, WithLock(ctx, []any{r2, "key"}, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	require.NoError(t, WaitForLockRelease(ctx, r2, "key"))
}

func TestLockerAdapter(t *testing.T) {
	table := NewTable[string]()
	ctx := context.Background()
	l1 := table.Locker("gc", "images")
	l2 := table.Locker("gc", "images")

	require.NoError(t, l1.Lock(ctx))
	ok, err := l2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l1.Unlock(ctx))
	require.NoError(t, l1.Unlock(ctx))
	ok, err = l2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l2.Unlock(ctx))
	assert.False(t, table.IsActive("gc", "images"))
}

type countingObserver struct {
	mu sync.Mutex

	immediate, queued int
	cancels           int
	handoffs, idles   int
}

func (o *countingObserver) Acquired(queued bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if queued {
		o.queued++
	} else {
		o.immediate++
	}
}

func (o *countingObserver) Cancelled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels++
}

func (o *countingObserver) Released(idle bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if idle {
		o.idles++
	} else {
		o.handoffs++
	}
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	table := NewTable[string](WithObserver(obs))
	ctx := context.Background()

	h, err := table.Acquire(ctx, "k")
	require.NoError(t, err)

	next := make(chan *Handle[string], 1)
	go func() {
		h, err := table.Acquire(ctx, "k")
		assert.NoError(t, err)
		next <- h
	}()
	waitForWaiters(t, table, 1)

	cctx, cancel := context.WithCancel(ctx)
	cancelled := make(chan error, 1)
	go func() {
		_, err := table.Acquire(cctx, "k")
		cancelled <- err
	}()
	waitForWaiters(t, table, 2)
	cancel()
	assert.ErrorIs(t, <-cancelled, ErrCancelled)

	h.Release()
	(<-next).Release()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.immediate)
	assert.Equal(t, 1, obs.queued)
	assert.Equal(t, 1, obs.cancels)
	assert.Equal(t, 1, obs.handoffs)
	assert.Equal(t, 1, obs.idles)
}

func TestUnhashableScopeLeavesTableUsable(t *testing.T) {
	table := NewTable[any]()
	ctx := context.Background()

	assert.Panics(t, func() { _, _ = table.Acquire(ctx, []int{1}) })
	assert.Panics(t, func() { _ = table.WaitForRelease(ctx, map[string]int{}) })

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	h, err := table.Acquire(tctx, "unrelated")
	require.NoError(t, err)
	assert.True(t, table.IsActive("unrelated"))

	// Panicking while the scope is held must not strand its holder either.
	assert.Panics(t, func() { _, _ = table.Acquire(ctx, "unrelated", []string{"x"}) })
	h.Release()
	assert.False(t, table.IsActive("unrelated"))
	assert.Equal(t, Stats{}, table.Stats())
}

// reacquireObserver grabs the scope on behalf of a new caller at the instant
// the last holder releases it, before any woken subscriber runs again.
type reacquireObserver struct {
	nopObserver
	table *Table[string]
	scope []string
	fired bool
	held  *Handle[string]
}

func (o *reacquireObserver) Released(idle bool) {
	if !idle || o.fired {
		return
	}
	o.fired = true
	// t.mu is held here, exactly as for an Acquire racing the release.
	o.held = newHandle(o.table, o.scope, o.table.createLocked(o.scope))
}

func TestWaitForReleaseResubscribesAfterRacingAcquire(t *testing.T) {
	obs := &reacquireObserver{scope: []string{"k"}}
	table := NewTable[string](WithObserver(obs))
	obs.table = table
	ctx := context.Background()

	h, err := table.Acquire(ctx, "k")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- table.WaitForRelease(ctx, "k") }()
	waitForSubscribers(t, table, 1)

	h.Release()
	require.NotNil(t, obs.held)
	assert.True(t, table.IsActive("k"))

	// The woken subscriber finds the new holder and queues again.
	waitForSubscribers(t, table, 1)
	select {
	case err := <-done:
		t.Fatalf("WaitForRelease returned while the scope was held: %v", err)
	case <-time.After(settle):
	}

	obs.held.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForRelease did not return after the final release")
	}
	assert.False(t, table.IsActive("k"))
}
