package multikey

import (
	"iter"
	"runtime"
	"slices"
	"sync"
	"weak"
)

// WeakValueMap is a Map that does not keep its values alive. Once a value is
// garbage collected its entry is removed by a runtime cleanup.
//
// WeakValueMap is safe for concurrent use.
type WeakValueMap[K comparable, V any] struct {
	mu sync.Mutex
	m  *Map[K, *weakValue[V]]
}

type weakValue[V any] struct {
	ref     weak.Pointer[V]
	cleanup runtime.Cleanup
}

type cleanupArg[K comparable, V any] struct {
	key []K
	ref weak.Pointer[V]
}

// NewWeakValueMap returns an empty WeakValueMap.
func NewWeakValueMap[K comparable, V any]() *WeakValueMap[K, V] {
	return &WeakValueMap[K, V]{m: New[K, *weakValue[V]]()}
}

// Set stores a weak reference to value under key. value must not be nil.
func (w *WeakValueMap[K, V]) Set(key []K, value *V) *WeakValueMap[K, V] {
	ref := weak.Make(value)
	wv := &weakValue[V]{ref: ref}
	wv.cleanup = runtime.AddCleanup(value, w.finalize, cleanupArg[K, V]{key: slices.Clone(key), ref: ref})

	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.m.Get(key); ok {
		old.cleanup.Stop()
	}
	w.m.Set(key, wv)
	return w
}

// Get returns the value stored under key if it is still alive.
func (w *WeakValueMap[K, V]) Get(key []K) (*V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wv, ok := w.m.Get(key)
	if !ok {
		return nil, false
	}
	v := wv.ref.Value()
	if v == nil {
		w.m.Delete(key)
		return nil, false
	}
	return v, true
}

// Has reports whether a live value is stored under key.
func (w *WeakValueMap[K, V]) Has(key []K) bool {
	_, ok := w.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (w *WeakValueMap[K, V]) Delete(key []K) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	wv, ok := w.m.Get(key)
	if !ok {
		return false
	}
	wv.cleanup.Stop()
	return w.m.Delete(key)
}

// Clear removes every entry.
func (w *WeakValueMap[K, V]) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for wv := range w.m.Values() {
		wv.cleanup.Stop()
	}
	w.m.Clear()
}

// Len returns the number of entries, including values collected but not yet
// cleaned up.
func (w *WeakValueMap[K, V]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.Len()
}

// All yields live entries in first-insertion order. The map is snapshotted
// before the first yield, so fn may call back into the map.
func (w *WeakValueMap[K, V]) All() iter.Seq2[[]K, *V] {
	return func(yield func([]K, *V) bool) {
		type pair struct {
			key []K
			val *V
		}
		w.mu.Lock()
		pairs := make([]pair, 0, w.m.Len())
		for k, wv := range w.m.All() {
			if v := wv.ref.Value(); v != nil {
				pairs = append(pairs, pair{key: k, val: v})
			}
		}
		w.mu.Unlock()

		for _, p := range pairs {
			if !yield(p.key, p.val) {
				return
			}
		}
	}
}

// finalize drops the entry for a collected value unless the key has since
// been pointed at a different value.
func (w *WeakValueMap[K, V]) finalize(arg cleanupArg[K, V]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wv, ok := w.m.Get(arg.key); ok && wv.ref == arg.ref {
		w.m.Delete(arg.key)
	}
}
