package storage

import "context"

// Initer is optionally implemented by *T to initialize zero-value fields
// (e.g., nil maps) after deserialization or when the backing store is empty.
type Initer interface {
	Init()
}

// Store provides locked read/modify/write access to a document.
type Store[T any] interface {
	// With loads the document under lock and passes it to fn.
	// The lock is held for the duration of fn.
	With(ctx context.Context, fn func(*T) error) error
	// Update performs a read-modify-write under lock.
	// The document is persisted only if fn returns nil.
	Update(ctx context.Context, fn func(*T) error) error

	// Read loads the document without locking. The caller must already
	// hold the store's lock, e.g. from a GC cycle.
	Read(fn func(*T) error) error
	// Write is Update without locking, under the same precondition as Read.
	Write(fn func(*T) error) error
}
