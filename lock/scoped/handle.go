package scoped

import (
	"slices"
	"sync"

	"github.com/projecteru2/scopelock/disposable"
)

// Handle is the capability returned by a successful acquisition. Releasing
// it hands the scope to the next waiter. Only the first Release has effect.
type Handle[K comparable] struct {
	table *Table[K]
	scope []K
	e     *entry
	once  sync.Once
}

var _ disposable.Disposable = (*Handle[string])(nil)

func newHandle[K comparable](t *Table[K], scope []K, e *entry) *Handle[K] {
	return &Handle[K]{table: t, scope: slices.Clone(scope), e: e}
}

// Scope returns a copy of the scope this handle holds.
func (h *Handle[K]) Scope() []K {
	return slices.Clone(h.scope)
}

// Release gives up ownership.
func (h *Handle[K]) Release() {
	h.once.Do(func() {
		h.table.release(h.scope, h.e)
	})
}

// Dispose is Release, satisfying disposable.Disposable.
func (h *Handle[K]) Dispose() {
	h.Release()
}
