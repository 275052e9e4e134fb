package disposable

import (
	"context"
	"errors"
	"sync"
)

// ErrDisposed is returned when an operation is attempted on a disposed object.
var ErrDisposed = errors.New("object is disposed")

// Disposable releases a resource. Dispose must be idempotent.
type Disposable interface {
	Dispose()
}

// AsyncDisposable releases a resource that may block or fail.
type AsyncDisposable interface {
	Dispose(ctx context.Context) error
}

// Handle runs its release function on the first Dispose call only.
type Handle struct {
	mu        sync.Mutex
	onDispose func()
}

var _ Disposable = (*Handle)(nil)

// NewHandle returns a Handle that calls onDispose once.
func NewHandle(onDispose func()) *Handle {
	return &Handle{onDispose: onDispose}
}

// Dispose calls the release function if it has not run yet.
func (h *Handle) Dispose() {
	h.mu.Lock()
	fn := h.onDispose
	h.onDispose = nil
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Disposed reports whether Dispose has been called.
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onDispose == nil
}

// AsyncHandle is the AsyncDisposable counterpart of Handle. Only the first
// Dispose call runs the release function and sees its error.
type AsyncHandle struct {
	mu        sync.Mutex
	onDispose func(context.Context) error
}

var _ AsyncDisposable = (*AsyncHandle)(nil)

// NewAsyncHandle returns an AsyncHandle that calls onDispose once.
func NewAsyncHandle(onDispose func(context.Context) error) *AsyncHandle {
	return &AsyncHandle{onDispose: onDispose}
}

// Dispose calls the release function if it has not run yet.
func (h *AsyncHandle) Dispose(ctx context.Context) error {
	h.mu.Lock()
	fn := h.onDispose
	h.onDispose = nil
	h.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Disposed reports whether Dispose has been called.
func (h *AsyncHandle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onDispose == nil
}
