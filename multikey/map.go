package multikey

import (
	"iter"
	"slices"
)

// Map is an associative container keyed by an ordered tuple of comparable
// elements. Every key element addresses one level of a trie, so Set, Get,
// Has and Delete cost O(len(key)) regardless of how many keys are stored.
//
// Iteration follows the order in which each distinct key was first inserted;
// overwriting an existing key keeps its position.
//
// Map is not safe for concurrent use.
type Map[K comparable, V any] struct {
	root *node[K, V]

	// head and tail link live slots in first-insertion order.
	head, tail *slot[K, V]
	size       int
}

type node[K comparable, V any] struct {
	children map[K]*node[K, V]
	// terminal is non-nil when a key ends at this node.
	terminal *slot[K, V]
}

type slot[K comparable, V any] struct {
	key   []K // canonical copy taken on first insertion
	value V

	prev, next *slot[K, V]
	// A removed slot keeps its next link, so an iterator parked on it
	// can still walk forward to the live slots.
	removed bool
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{root: &node[K, V]{}}
}

// From builds a Map from a sequence of key/value pairs. Later pairs overwrite
// earlier ones with an equal key.
func From[K comparable, V any](seq iter.Seq2[[]K, V]) *Map[K, V] {
	m := New[K, V]()
	for k, v := range seq {
		m.Set(k, v)
	}
	return m
}

// Clone returns a shallow copy preserving iteration order.
func (m *Map[K, V]) Clone() *Map[K, V] {
	return From(m.All())
}

// Set adds or updates the value stored under key.
func (m *Map[K, V]) Set(key []K, value V) *Map[K, V] {
	n := m.root
	for _, k := range key {
		next, ok := n.children[k]
		if !ok {
			if n.children == nil {
				n.children = make(map[K]*node[K, V])
			}
			next = &node[K, V]{}
			n.children[k] = next
		}
		n = next
	}
	if n.terminal != nil {
		n.terminal.value = value
		return m
	}
	n.terminal = m.link(&slot[K, V]{key: slices.Clone(key), value: value})
	return m
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key []K) (V, bool) {
	if n := m.lookup(key); n != nil && n.terminal != nil {
		return n.terminal.value, true
	}
	var zero V
	return zero, false
}

// Has reports whether a value is stored under key.
func (m *Map[K, V]) Has(key []K) bool {
	n := m.lookup(key)
	return n != nil && n.terminal != nil
}

// Delete removes key and prunes trie levels left without children or
// values. It reports whether key was present.
func (m *Map[K, V]) Delete(key []K) bool {
	path := make([]*node[K, V], 0, len(key)+1)
	n := m.root
	path = append(path, n)
	for _, k := range key {
		next, ok := n.children[k]
		if !ok {
			return false
		}
		n = next
		path = append(path, n)
	}
	if n.terminal == nil {
		return false
	}
	m.unlink(n.terminal)
	n.terminal = nil

	// path[i+1] hangs off path[i] under key[i].
	for i := len(key) - 1; i >= 0; i-- {
		child := path[i+1]
		if child.terminal != nil || len(child.children) > 0 {
			break
		}
		delete(path[i].children, key[i])
	}
	return true
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	for s := m.head; s != nil; s = s.next {
		s.removed = true
	}
	m.root = &node[K, V]{}
	m.head, m.tail, m.size = nil, nil, 0
}

// Len returns the number of distinct keys.
func (m *Map[K, V]) Len() int {
	return m.size
}

// All yields key/value pairs in first-insertion order. Keys are copies.
// Any key may be deleted while iterating; deleted entries that were not
// yet visited are skipped. Entries added during iteration may or may not
// be visited.
func (m *Map[K, V]) All() iter.Seq2[[]K, V] {
	return func(yield func([]K, V) bool) {
		for s := m.head; s != nil; s = s.next {
			if s.removed {
				continue
			}
			if !yield(slices.Clone(s.key), s.value) {
				return
			}
		}
	}
}

// Keys yields copies of the keys in first-insertion order.
func (m *Map[K, V]) Keys() iter.Seq[[]K] {
	return func(yield func([]K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values yields the values in first-insertion order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Range calls fn for every entry until fn returns false.
func (m *Map[K, V]) Range(fn func(key []K, value V) bool) {
	for k, v := range m.All() {
		if !fn(k, v) {
			return
		}
	}
}

func (m *Map[K, V]) link(s *slot[K, V]) *slot[K, V] {
	s.prev = m.tail
	if m.tail != nil {
		m.tail.next = s
	} else {
		m.head = s
	}
	m.tail = s
	m.size++
	return s
}

func (m *Map[K, V]) unlink(s *slot[K, V]) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		m.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		m.tail = s.prev
	}
	s.prev = nil
	s.removed = true
	m.size--
}

func (m *Map[K, V]) lookup(key []K) *node[K, V] {
	n := m.root
	for _, k := range key {
		next, ok := n.children[k]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

// branches returns the number of first-level children of the trie root.
func (m *Map[K, V]) branches() int {
	return len(m.root.children)
}
