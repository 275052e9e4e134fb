package gc

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/scopelock/disposable"
	"github.com/projecteru2/scopelock/lock"
)

// runner erases the snapshot type so Modules of different S share a slice.
type runner interface {
	getName() string
	getLocker() lock.Locker
	readSnapshot(ctx context.Context) (any, error)
	resolveTargets(snap any, others map[string]any) []string
	collect(ctx context.Context, ids []string) error
}

// Orchestrator runs GC cycles over registered modules.
type Orchestrator struct {
	modules []runner
}

// New creates an empty Orchestrator.
func New() *Orchestrator { return &Orchestrator{} }

// Register adds m to o.
func Register[S any](o *Orchestrator, m Module[S]) {
	o.modules = append(o.modules, m)
}

// Report summarizes one cycle: collected IDs per module.
type Report map[string][]string

// Run executes one cycle. Every module lock is try-locked up front and held
// until the cycle ends; if any lock is busy nothing is collected.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	logger := log.WithFunc("gc.Run")

	var unlock disposable.Aggregator
	defer unlock.Dispose()

	var busy []string
	for _, m := range o.modules {
		ok, err := m.getLocker().TryLock(ctx)
		switch {
		case err != nil:
			logger.Warnf(ctx, "skip %s: trylock: %v", m.getName(), err)
			busy = append(busy, m.getName())
		case !ok:
			busy = append(busy, m.getName())
		default:
			locker := m.getLocker()
			_ = unlock.Add(func() { locker.Unlock(ctx) }) //nolint:errcheck
		}
	}
	if len(busy) > 0 {
		return nil, fmt.Errorf("gc aborted, lock busy: %s", strings.Join(busy, ", "))
	}

	snapshots := make(map[string]any, len(o.modules))
	for _, m := range o.modules {
		snap, err := m.readSnapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("gc aborted, snapshot %s: %w", m.getName(), err)
		}
		snapshots[m.getName()] = snap
	}

	report := Report{}
	var errs []error
	for _, m := range o.modules {
		others := maps.Clone(snapshots)
		delete(others, m.getName())
		ids := m.resolveTargets(snapshots[m.getName()], others)
		if len(ids) == 0 {
			continue
		}
		if err := m.collect(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("collect %s: %w", m.getName(), err))
			continue
		}
		report[m.getName()] = ids
		logger.Infof(ctx, "%s: collected %d", m.getName(), len(ids))
	}
	return report, errors.Join(errs...)
}
