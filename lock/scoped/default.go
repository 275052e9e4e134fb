package scoped

import "context"

// Default is the process-wide lock table used by the package-level
// functions. Scope elements must be comparable at run time; passing a slice
// or map element panics, and the table stays usable after the panic is
// recovered.
var Default = NewTable[any]()

// IsLockActive reports whether scope is held in Default.
func IsLockActive(scope ...any) bool {
	return Default.IsActive(scope...)
}

// AcquireLock acquires scope in Default. See Table.Acquire.
func AcquireLock(ctx context.Context, scope ...any) (*Handle[any], error) {
	return Default.Acquire(ctx, scope...)
}

// WithLock runs fn while holding scope in Default. See Table.Do.
func WithLock(ctx context.Context, scope []any, fn func(context.Context) error) error {
	return Default.Do(ctx, scope, fn)
}

// WaitForLockRelease waits until scope is idle in Default. See
// Table.WaitForRelease.
func WaitForLockRelease(ctx context.Context, scope ...any) error {
	return Default.WaitForRelease(ctx, scope...)
}
