package scoped

import "context"

// Do runs fn while exclusively holding scope. fn runs at most once, and only
// after ownership is granted; the lock is released on every exit path before
// Do returns. fn's error is returned unchanged. If ctx is done before the
// grant, fn does not run and the cancellation error is returned.
func (t *Table[K]) Do(ctx context.Context, scope []K, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilCallback
	}
	h, err := t.Acquire(ctx, scope...)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(ctx)
}

// Run is Do for functions that produce a value.
func Run[K comparable, T any](ctx context.Context, t *Table[K], scope []K, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrNilCallback
	}
	h, err := t.Acquire(ctx, scope...)
	if err != nil {
		return zero, err
	}
	defer h.Release()
	return fn(ctx)
}
