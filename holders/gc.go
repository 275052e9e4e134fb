package holders

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/projecteru2/scopelock/config"
	"github.com/projecteru2/scopelock/gc"
	"github.com/projecteru2/scopelock/lock/flock"
	"github.com/projecteru2/scopelock/types"
	"github.com/projecteru2/scopelock/utils"
)

const (
	holdersModule   = "holders"
	lockFilesModule = "lockfiles"
)

// holdersSnapshot lists live scopes and dead holder records.
type holdersSnapshot struct {
	liveScopes map[string]struct{} // ScopeIDs with a live holder
	dead       []string            // holder IDs whose process is gone
}

// lockFilesSnapshot lists lock files on disk by ScopeID.
type lockFilesSnapshot struct {
	ids []string
}

// GCModule reclaims records of holders whose process has exited.
func (r *Registry) GCModule(alive func(pid int) bool) gc.Module[holdersSnapshot] {
	return gc.Module[holdersSnapshot]{
		Name:   holdersModule,
		Locker: r.locker,
		ReadDB: func(context.Context) (holdersSnapshot, error) {
			snap := holdersSnapshot{liveScopes: map[string]struct{}{}}
			err := r.store.Read(func(idx *types.HolderIndex) error {
				for _, h := range sortedHolders(idx) {
					if alive(h.PID) {
						snap.liveScopes[types.ScopeID(h.Scope)] = struct{}{}
					} else {
						snap.dead = append(snap.dead, h.ID)
					}
				}
				return nil
			})
			return snap, err
		},
		Resolve: func(snap holdersSnapshot, _ map[string]any) []string {
			return snap.dead
		},
		Collect: func(_ context.Context, ids []string) error {
			return r.store.Write(func(idx *types.HolderIndex) error {
				for _, id := range ids {
					delete(idx.Holders, id)
				}
				return nil
			})
		},
	}
}

// LockFilesGCModule removes per-scope lock files that no live holder
// references and no process holds. Its Locker is the exclusive side of
// conf.LockGate(); acquirers hold the shared side from opening a lock file
// until they own it, so no file is unlinked while someone waits on it.
func LockFilesGCModule(conf *config.Config) gc.Module[lockFilesSnapshot] {
	dir := conf.LockDir()
	return gc.Module[lockFilesSnapshot]{
		Name:   lockFilesModule,
		Locker: flock.New(conf.LockGate()),
		ReadDB: func(context.Context) (lockFilesSnapshot, error) {
			return lockFilesSnapshot{ids: utils.ScanFileStems(dir, config.LockSuffix)}, nil
		},
		Resolve: func(snap lockFilesSnapshot, others map[string]any) []string {
			hs, ok := others[holdersModule].(holdersSnapshot)
			if !ok {
				return nil
			}
			var out []string
			for _, id := range snap.ids {
				if _, live := hs.liveScopes[id]; !live {
					out = append(out, id)
				}
			}
			return out
		},
		Collect: func(ctx context.Context, ids []string) error {
			var errs []error
			for _, id := range ids {
				if err := removeIfFree(ctx, filepath.Join(dir, id+config.LockSuffix)); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// removeIfFree deletes path only while holding its flock, so a process
// that still holds it keeps its file.
func removeIfFree(ctx context.Context, path string) error {
	fl := flock.New(path)
	ok, err := fl.TryLock(ctx)
	if err != nil || !ok {
		return err
	}
	defer fl.Unlock(ctx) //nolint:errcheck
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RegisterGC registers the holder and lock file modules with o.
func (r *Registry) RegisterGC(o *gc.Orchestrator, conf *config.Config) {
	gc.Register(o, r.GCModule(utils.IsProcessAlive))
	gc.Register(o, LockFilesGCModule(conf))
}
