package scoped

import (
	"container/list"
	"context"
	"runtime"
	"slices"
	"sync"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/scopelock/multikey"
)

// Table maps scopes to FIFO lock queues. A scope is an ordered tuple of
// comparable elements; two scopes address the same lock when they are
// element-wise equal, so pointer elements compare by identity and value
// elements by value.
//
// An entry exists for a scope exactly while the scope is held, from the
// first grant until the last holder releases with no waiter left.
type Table[K comparable] struct {
	mu       sync.Mutex
	entries  *multikey.Map[K, *entry]
	name     string
	observer Observer
}

// entry is the live state of one held scope.
type entry struct {
	waiters     *list.List // of *waiter, arrival order
	subscribers *list.List // of *waiter, WaitForRelease callers
}

// waiter is a suspended caller. ready is closed, with the table mutex held,
// when the caller is granted ownership or the scope becomes idle.
type waiter struct {
	ready chan struct{}
}

func newWaiter() *waiter { return &waiter{ready: make(chan struct{})} }

func (w *waiter) signalled() bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// Stats is a point-in-time view of a Table.
type Stats struct {
	Scopes      int // held scopes
	Waiters     int // queued acquisitions across all scopes
	Subscribers int // pending WaitForRelease calls across all scopes
}

// Option configures a Table.
type Option func(*options)

type options struct {
	name     string
	observer Observer
}

// WithName names the table in log output. Unnamed tables do not log.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithObserver registers an Observer for lock transitions.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// NewTable returns an empty Table.
func NewTable[K comparable](opts ...Option) *Table[K] {
	o := options{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return &Table[K]{
		entries:  multikey.New[K, *entry](),
		name:     o.name,
		observer: o.observer,
	}
}

// IsActive reports whether scope is held or has queued waiters.
func (t *Table[K]) IsActive(scope ...K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Has(scope)
}

// Acquire blocks until the caller exclusively holds scope. Requests on the
// same scope are granted in arrival order.
//
// If ctx is done before ownership is granted the request leaves the queue
// without disturbing other waiters, and Acquire returns an error matching
// both ErrCancelled and context.Cause(ctx). If the grant and the
// cancellation race, whichever the table observed first wins.
func (t *Table[K]) Acquire(ctx context.Context, scope ...K) (*Handle[K], error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	e, w, elem := t.join(scope)
	if w == nil {
		return newHandle(t, scope, e), nil
	}

	select {
	case <-w.ready:
		return newHandle(t, scope, e), nil
	case <-ctx.Done():
	}

	if !t.abandon(e.waiters, elem) {
		return newHandle(t, scope, e), nil
	}
	if t.name != "" {
		log.WithFunc("scoped.Acquire").Infof(ctx, "%s: queued request for %v abandoned: %v", t.name, scope, context.Cause(ctx))
	}
	return nil, cancelled(ctx)
}

// join grants scope at once when it is idle, returning a nil waiter, or
// queues a waiter behind the current holder. Hashing a scope element of a
// non-comparable dynamic type panics; t.mu is released on that path too.
func (t *Table[K]) join(scope []K) (*entry, *waiter, *list.Element) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries.Get(scope); ok {
		w := newWaiter()
		return e, w, e.waiters.PushBack(w)
	}
	e := t.createLocked(scope)
	t.observer.Acquired(false)
	return e, nil, nil
}

// abandon removes elem from q unless its waiter was signalled first, in
// which case the signal wins and abandon reports false.
func (t *Table[K]) abandon(q *list.List, elem *list.Element) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem.Value.(*waiter).signalled() {
		return false
	}
	q.Remove(elem)
	t.observer.Cancelled()
	return true
}

// TryAcquire grants scope only if it is idle. It never queues.
func (t *Table[K]) TryAcquire(scope ...K) (*Handle[K], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries.Has(scope) {
		return nil, false
	}
	e := t.createLocked(scope)
	t.observer.Acquired(false)
	return newHandle(t, scope, e), true
}

// WaitForRelease blocks until scope is fully idle: no holder and no queued
// waiter. It returns at once if scope is idle already.
//
// After being signalled the caller yields one scheduling turn and re-checks,
// so that an acquisition racing the final release is seen and waited out.
// This narrows the window but is no guarantee that scope is still idle when
// the caller acts on the result.
func (t *Table[K]) WaitForRelease(ctx context.Context, scope ...K) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	for {
		e, sub, elem := t.subscribe(scope)
		if sub == nil {
			return nil
		}
		select {
		case <-sub.ready:
		case <-ctx.Done():
			if t.abandon(e.subscribers, elem) {
				return cancelled(ctx)
			}
		}
		runtime.Gosched()
	}
}

// subscribe queues a release subscriber on scope. A nil subscriber means
// scope is idle.
func (t *Table[K]) subscribe(scope []K) (*entry, *waiter, *list.Element) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries.Get(scope)
	if !ok {
		return nil, nil, nil
	}
	s := newWaiter()
	return e, s, e.subscribers.PushBack(s)
}

// Waiters returns the number of acquisitions queued on scope.
func (t *Table[K]) Waiters(scope ...K) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries.Get(scope); ok {
		return e.waiters.Len()
	}
	return 0
}

// Stats returns queue sizes across all scopes.
func (t *Table[K]) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Stats{Scopes: t.entries.Len()}
	for e := range t.entries.Values() {
		st.Waiters += e.waiters.Len()
		st.Subscribers += e.subscribers.Len()
	}
	return st
}

// Scopes returns the held scopes in the order they were first acquired.
func (t *Table[K]) Scopes() [][]K {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Collect(t.entries.Keys())
}

func (t *Table[K]) createLocked(scope []K) *entry {
	e := &entry{waiters: list.New(), subscribers: list.New()}
	t.entries.Set(scope, e)
	return e
}

// release hands scope to the next waiter, or removes its entry and wakes
// every release subscriber when nobody is waiting.
func (t *Table[K]) release(scope []K, e *entry) {
	if woken := t.handOff(scope, e); t.name != "" && woken > 0 {
		log.WithFunc("scoped.release").Infof(context.Background(), "%s: %v idle, woke %d release subscriber(s)", t.name, scope, woken)
	}
}

// handOff performs release under t.mu and returns the number of release
// subscribers woken.
func (t *Table[K]) handOff(scope []K, e *entry) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if front := e.waiters.Front(); front != nil {
		e.waiters.Remove(front)
		close(front.Value.(*waiter).ready)
		t.observer.Released(false)
		t.observer.Acquired(true)
		return 0
	}

	t.entries.Delete(scope)
	for el := e.subscribers.Front(); el != nil; el = el.Next() {
		close(el.Value.(*waiter).ready)
	}
	woken := e.subscribers.Len()
	e.subscribers.Init()
	t.observer.Released(true)
	return woken
}
