package flock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/projecteru2/scopelock/lock"
	"github.com/projecteru2/scopelock/lock/scoped"
)

const retryDelay = 100 * time.Millisecond

// paths serializes in-process callers per lock file before they touch
// flock(2), so goroutines queue FIFO instead of polling the fd.
var paths = scoped.NewTable[string](scoped.WithName("flock"))

// compile-time interface check.
var _ lock.Locker = (*Lock)(nil)

// Lock provides mutual exclusion combining:
//   - In-process exclusion through a process-wide scoped table keyed by path.
//     Every Lock instance on the same path shares one FIFO queue, and a
//     queued Lock() leaves the queue as soon as ctx is done.
//   - Cross-process exclusion via flock(2) with a fresh fd on every acquisition.
//
// Shared locks skip the in-process table and rely on flock(2) alone.
type Lock struct {
	path   string
	shared bool

	mu sync.Mutex
	// held and fl are non-nil while the lock is held.
	held *scoped.Handle[string]
	fl   *flock.Flock
}

// New creates a Lock for the given path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// NewShared creates a Lock that takes a shared flock(2). Shared holders
// never exclude each other, in-process or not; they exclude exclusive ones.
func NewShared(path string) *Lock {
	return &Lock{path: path, shared: true}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Lock acquires the lock, blocking until available or ctx is cancelled.
func (l *Lock) Lock(ctx context.Context) error {
	var h *scoped.Handle[string]
	if !l.shared {
		var err error
		if h, err = paths.Acquire(ctx, l.path); err != nil {
			return fmt.Errorf("acquire lock %s: %w", l.path, err)
		}
	}
	ok, err := l.commitFlock(h, func(fl *flock.Flock) (bool, error) {
		if l.shared {
			return fl.TryRLockContext(ctx, retryDelay)
		}
		return fl.TryLockContext(ctx, retryDelay)
	})
	if err != nil {
		return fmt.Errorf("acquire flock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("acquire flock %s: %w", l.path, ctx.Err())
	}
	return nil
}

// TryLock attempts a non-blocking acquisition.
// Returns (false, nil) if the lock is currently held by another caller.
func (l *Lock) TryLock(_ context.Context) (bool, error) {
	if l.shared {
		return l.commitFlock(nil, func(fl *flock.Flock) (bool, error) {
			return fl.TryRLock()
		})
	}
	h, ok := paths.TryAcquire(l.path)
	if !ok {
		return false, nil
	}
	return l.commitFlock(h, func(fl *flock.Flock) (bool, error) {
		return fl.TryLock()
	})
}

// Unlock releases the lock.
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	fl, held := l.fl, l.held
	l.fl, l.held = nil, nil
	l.mu.Unlock()

	var err error
	if fl != nil {
		err = fl.Unlock()
	}
	if held != nil {
		held.Release()
	}
	if err != nil {
		return fmt.Errorf("release flock %s: %w", l.path, err)
	}
	return nil
}

// commitFlock opens a fresh flock fd and runs acquire. On success the fd and
// the in-process grant h (nil for shared locks) are kept until Unlock; on
// failure h is released at once.
func (l *Lock) commitFlock(h *scoped.Handle[string], acquire func(*flock.Flock) (bool, error)) (bool, error) {
	fl := flock.New(l.path)
	locked, err := acquire(fl)
	if err != nil || !locked {
		if h != nil {
			h.Release()
		}
		return false, err
	}
	l.mu.Lock()
	l.held, l.fl = h, fl
	l.mu.Unlock()
	return true, nil
}
