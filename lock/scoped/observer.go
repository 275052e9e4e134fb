package scoped

// Observer is notified of lock table transitions. Calls are made while the
// table's mutex is held, so implementations must be quick and must not call
// back into the table.
type Observer interface {
	// Acquired fires when a caller is granted ownership. queued is false when
	// the scope was idle and ownership was granted without waiting.
	Acquired(queued bool)
	// Cancelled fires when a queued acquisition or a release subscription is
	// abandoned because its context was done.
	Cancelled()
	// Released fires when a holder releases. idle is true when no waiter was
	// left and the scope's entry was removed.
	Released(idle bool)
}

type nopObserver struct{}

func (nopObserver) Acquired(bool) {}
func (nopObserver) Cancelled()    {}
func (nopObserver) Released(bool) {}
