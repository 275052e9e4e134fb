package disposable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Aggregator collects disposal targets and disposes them together, in the
// order they were added. Accepted targets are Disposable, func() and
// io.Closer (Close errors are dropped; use AsyncAggregator to see them).
type Aggregator struct {
	mu       sync.Mutex
	targets  []any
	disposed bool
}

var _ Disposable = (*Aggregator)(nil)

// Add registers target. It returns ErrDisposed once the aggregator has been
// disposed.
func (a *Aggregator) Add(target any) error {
	switch target.(type) {
	case Disposable, func(), io.Closer:
	default:
		return fmt.Errorf("unsupported dispose target %T", target)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return ErrDisposed
	}
	a.targets = append(a.targets, target)
	return nil
}

// Dispose disposes every target and marks the aggregator disposed.
// Subsequent calls do nothing.
func (a *Aggregator) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	targets := a.targets
	a.targets = nil
	a.mu.Unlock()

	for _, t := range targets {
		switch v := t.(type) {
		case Disposable:
			v.Dispose()
		case func():
			v()
		case io.Closer:
			_ = v.Close()
		}
	}
}

// Len returns the number of targets waiting to be disposed.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.targets)
}

// AsyncAggregator is Aggregator for targets that may fail. It additionally
// accepts AsyncDisposable and func(context.Context) error.
type AsyncAggregator struct {
	mu       sync.Mutex
	targets  []any
	disposed bool
}

var _ AsyncDisposable = (*AsyncAggregator)(nil)

// Add registers target. It returns ErrDisposed once disposal has started.
func (a *AsyncAggregator) Add(target any) error {
	switch target.(type) {
	case AsyncDisposable, Disposable, func(context.Context) error, func(), io.Closer:
	default:
		return fmt.Errorf("unsupported dispose target %T", target)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return ErrDisposed
	}
	a.targets = append(a.targets, target)
	return nil
}

// Dispose disposes every target in insertion order, continuing past
// failures, and returns all errors joined. A second call returns ErrDisposed.
func (a *AsyncAggregator) Dispose(ctx context.Context) error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return ErrDisposed
	}
	a.disposed = true
	targets := a.targets
	a.targets = nil
	a.mu.Unlock()

	var errs []error
	for i, t := range targets {
		var err error
		switch v := t.(type) {
		case AsyncDisposable:
			err = v.Dispose(ctx)
		case Disposable:
			v.Dispose()
		case func(context.Context) error:
			err = v(ctx)
		case func():
			v()
		case io.Closer:
			err = v.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("dispose target %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of targets waiting to be disposed.
func (a *AsyncAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.targets)
}
