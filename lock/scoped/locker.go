package scoped

import (
	"context"
	"slices"
	"sync"

	"github.com/projecteru2/scopelock/lock"
)

// compile-time interface check.
var _ lock.Locker = (*Locker[string])(nil)

// Locker adapts one scope of a Table to lock.Locker. A Locker holds at most
// one grant at a time; concurrent Lock calls on the same Locker queue on
// the scope like any other acquirer.
type Locker[K comparable] struct {
	table *Table[K]
	scope []K

	mu   sync.Mutex
	held *Handle[K]
}

// Locker returns a lock.Locker bound to scope.
func (t *Table[K]) Locker(scope ...K) *Locker[K] {
	return &Locker[K]{table: t, scope: slices.Clone(scope)}
}

// Lock acquires the scope, blocking until granted or ctx is done.
func (l *Locker[K]) Lock(ctx context.Context) error {
	h, err := l.table.Acquire(ctx, l.scope...)
	if err != nil {
		return err
	}
	l.set(h)
	return nil
}

// TryLock acquires the scope only if it is idle.
func (l *Locker[K]) TryLock(_ context.Context) (bool, error) {
	h, ok := l.table.TryAcquire(l.scope...)
	if !ok {
		return false, nil
	}
	l.set(h)
	return true, nil
}

// Unlock releases the grant held by this Locker. Unlocking an unheld
// Locker is a no-op.
func (l *Locker[K]) Unlock(_ context.Context) error {
	l.mu.Lock()
	h := l.held
	l.held = nil
	l.mu.Unlock()
	if h != nil {
		h.Release()
	}
	return nil
}

func (l *Locker[K]) set(h *Handle[K]) {
	l.mu.Lock()
	l.held = h
	l.mu.Unlock()
}
