package utils

import (
	"context"
	"fmt"
	"time"
)

// WaitFor calls check every interval until it reports done, fails, or the
// timeout or ctx expires. A non-positive timeout waits for ctx only.
func WaitFor(ctx context.Context, timeout, interval time.Duration, check func(context.Context) (done bool, err error)) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, fmt.Errorf("timeout after %s", timeout))
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
}
