// Package holders records which processes currently hold which CLI scopes,
// so status can report them and GC can reclaim records of dead holders.
package holders

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/projecteru2/scopelock/config"
	"github.com/projecteru2/scopelock/lock"
	"github.com/projecteru2/scopelock/lock/flock"
	"github.com/projecteru2/scopelock/storage"
	storejson "github.com/projecteru2/scopelock/storage/json"
	"github.com/projecteru2/scopelock/types"
)

// Registry is the persistent holder index.
type Registry struct {
	store  storage.Store[types.HolderIndex]
	locker lock.Locker
}

// New opens the registry under conf's paths.
func New(conf *config.Config) *Registry {
	locker := flock.New(conf.HoldersLock())
	return &Registry{
		store:  storejson.New[types.HolderIndex](conf.HoldersFile(), locker),
		locker: locker,
	}
}

// Register records the calling process as holder of scope and returns
// the new record.
func (r *Registry) Register(ctx context.Context, scope []string, command string) (*types.Holder, error) {
	h := &types.Holder{
		ID:         uuid.NewString(),
		Scope:      slices.Clone(scope),
		PID:        os.Getpid(),
		Command:    command,
		AcquiredAt: time.Now(),
	}
	if err := r.store.Update(ctx, func(idx *types.HolderIndex) error {
		idx.Holders[h.ID] = h
		return nil
	}); err != nil {
		return nil, fmt.Errorf("register holder %s: %w", types.FormatScope(scope), err)
	}
	return h, nil
}

// Unregister removes the record with id. Unknown ids are ignored.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if err := r.store.Update(ctx, func(idx *types.HolderIndex) error {
		delete(idx.Holders, id)
		return nil
	}); err != nil {
		return fmt.Errorf("unregister holder %s: %w", id, err)
	}
	return nil
}

// List returns all records, oldest first.
func (r *Registry) List(ctx context.Context) ([]*types.Holder, error) {
	var out []*types.Holder
	if err := r.store.With(ctx, func(idx *types.HolderIndex) error {
		out = sortedHolders(idx)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	return out, nil
}

// Prune removes records whose PID fails alive and returns them.
func (r *Registry) Prune(ctx context.Context, alive func(pid int) bool) ([]*types.Holder, error) {
	var pruned []*types.Holder
	if err := r.store.Update(ctx, func(idx *types.HolderIndex) error {
		pruned = pruneDead(idx, alive)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("prune holders: %w", err)
	}
	return pruned, nil
}

func pruneDead(idx *types.HolderIndex, alive func(pid int) bool) []*types.Holder {
	var dead []*types.Holder
	for _, h := range sortedHolders(idx) {
		if !alive(h.PID) {
			delete(idx.Holders, h.ID)
			dead = append(dead, h)
		}
	}
	return dead
}

func sortedHolders(idx *types.HolderIndex) []*types.Holder {
	out := make([]*types.Holder, 0, len(idx.Holders))
	for _, h := range idx.Holders {
		if h != nil {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b *types.Holder) int {
		if c := a.AcquiredAt.Compare(b.AcquiredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
