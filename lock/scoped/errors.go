package scoped

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the caller's context is done before the
	// lock was granted. The context's cause is wrapped alongside it.
	ErrCancelled = errors.New("lock request cancelled")
	// ErrNilCallback is returned when a nil function is passed to Do or Run.
	ErrNilCallback = errors.New("nil callback")
)

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}
