package holders

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/scopelock/config"
	"github.com/projecteru2/scopelock/disposable"
	"github.com/projecteru2/scopelock/lock"
	"github.com/projecteru2/scopelock/lock/flock"
	"github.com/projecteru2/scopelock/types"
)

// Hold acquires the cross-process lock on scope and records the caller in
// the registry. Disposing the returned handle unregisters and unlocks, in
// that order.
func (r *Registry) Hold(ctx context.Context, conf *config.Config, scope []string, command string) (*disposable.AsyncAggregator, *types.Holder, error) {
	logger := log.WithFunc("holders.Hold")
	fl := flock.New(conf.LockFile(scope))

	if err := lock.WithLock(ctx, flock.NewShared(conf.LockGate()), func() error {
		return fl.Lock(ctx)
	}); err != nil {
		return nil, nil, fmt.Errorf("lock %s: %w", types.FormatScope(scope), err)
	}

	h, err := r.Register(ctx, scope, command)
	if err != nil {
		_ = fl.Unlock(ctx)
		return nil, nil, err
	}
	logger.Infof(ctx, "holding %s as %s", types.FormatScope(scope), h.ID)

	release := &disposable.AsyncAggregator{}
	_ = release.Add(func(ctx context.Context) error { return r.Unregister(ctx, h.ID) })
	_ = release.Add(func(ctx context.Context) error { return fl.Unlock(ctx) })
	return release, h, nil
}
