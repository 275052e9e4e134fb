package gc

import (
	"context"

	"github.com/projecteru2/scopelock/lock"
)

// Module is one participant in a GC cycle. S is the snapshot type the
// module reads while its lock is held.
type Module[S any] struct {
	Name string

	// Locker coordinates GC with live operations. A busy lock aborts the
	// whole cycle.
	Locker lock.Locker

	// ReadDB snapshots the module's state. Called with Locker held.
	ReadDB func(ctx context.Context) (S, error)

	// Resolve picks the IDs to collect. others holds the snapshots of
	// every other module, keyed by Name.
	Resolve func(snap S, others map[string]any) []string

	// Collect removes ids. Called with Locker held.
	Collect func(ctx context.Context, ids []string) error
}

func (m Module[S]) getName() string        { return m.Name }
func (m Module[S]) getLocker() lock.Locker { return m.Locker }

func (m Module[S]) readSnapshot(ctx context.Context) (any, error) {
	return m.ReadDB(ctx)
}

func (m Module[S]) resolveTargets(snap any, others map[string]any) []string {
	if m.Resolve == nil {
		return nil
	}
	s, _ := snap.(S)
	return m.Resolve(s, others)
}

func (m Module[S]) collect(ctx context.Context, ids []string) error {
	return m.Collect(ctx, ids)
}
