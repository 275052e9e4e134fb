package lock

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	units "github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cmdcore "github.com/projecteru2/scopelock/cmd/core"
	"github.com/projecteru2/scopelock/lock/scoped"
	"github.com/projecteru2/scopelock/metrics"
	"github.com/projecteru2/scopelock/progress"
	benchProgress "github.com/projecteru2/scopelock/progress/bench"
)

// benchResult is the outcome of contending on one scope.
type benchResult struct {
	scope      string
	overlaps   int32
	outOfOrder int
	maxWait    time.Duration
}

func (h Handler) Bench(cmd *cobra.Command, _ []string) error {
	ctx := cmdcore.CommandContext(cmd)
	goroutines, _ := cmd.Flags().GetInt("goroutines")
	scopes, _ := cmd.Flags().GetInt("scopes")
	hold, _ := cmd.Flags().GetDuration("hold")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	verbose, _ := cmd.Flags().GetBool("progress")
	if goroutines < 1 || scopes < 1 {
		return fmt.Errorf("--goroutines and --scopes must be positive")
	}

	table, collector := metrics.NewTable[string]("bench")
	tracker := progress.Nop
	if verbose {
		tracker = newBenchTracker(cmd.ErrOrStderr())
	}
	start := time.Now()

	results := make([]benchResult, scopes)
	g, gctx := errgroup.WithContext(ctx)
	for i := range scopes {
		g.Go(func() error {
			r, err := benchScope(gctx, table, fmt.Sprintf("scope-%d", i), goroutines, hold, tracker)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	var failed bool
	for _, r := range results {
		fmt.Fprintf(out, "%s: overlaps=%d out-of-order=%d max-wait=%s\n", r.scope, r.overlaps, r.outOfOrder, r.maxWait)
		failed = failed || r.overlaps > 0 || r.outOfOrder > 0
	}
	total := goroutines * scopes
	fmt.Fprintf(out, "%d acquisitions in %s (%.0f/s)\n", total, units.HumanDuration(elapsed), float64(total)/elapsed.Seconds())

	if withMetrics {
		if err := dumpMetrics(out, collector); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("bench: exclusion or ordering violated")
	}
	return nil
}

// benchScope holds scope, queues n acquirers one by one so their arrival
// order is known, then releases and records the order of grants.
func benchScope(ctx context.Context, table *scoped.Table[string], scope string, n int, hold time.Duration, tracker progress.Tracker) (benchResult, error) {
	res := benchResult{scope: scope}
	gate, err := table.Acquire(ctx, scope)
	if err != nil {
		return res, err
	}

	var (
		mu      sync.Mutex
		granted []int
		inside  atomic.Int32
		overlap atomic.Int32
		maxWait time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		queued := time.Now()
		g.Go(func() error {
			return table.Do(gctx, []string{scope}, func(context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Add(1)
				}
				mu.Lock()
				granted = append(granted, i)
				maxWait = max(maxWait, time.Since(queued))
				mu.Unlock()
				tracker.OnEvent(benchProgress.Event{Phase: benchProgress.PhaseGranted, Scope: scope, Index: i, Total: n})
				time.Sleep(hold)
				inside.Add(-1)
				return nil
			})
		})
		for table.Waiters(scope) < i+1 {
			if ctx.Err() != nil {
				gate.Release()
				return res, ctx.Err()
			}
			runtime.Gosched()
		}
	}
	tracker.OnEvent(benchProgress.Event{Phase: benchProgress.PhaseQueued, Scope: scope, Index: -1, Total: n})
	gate.Release()
	if err := g.Wait(); err != nil {
		return res, err
	}
	tracker.OnEvent(benchProgress.Event{Phase: benchProgress.PhaseDone, Scope: scope, Index: -1, Total: n})

	res.overlaps = overlap.Load()
	res.maxWait = maxWait
	for i, got := range granted {
		if got != i {
			res.outOfOrder++
		}
	}
	return res, nil
}

func newBenchTracker(w io.Writer) progress.Tracker {
	var mu sync.Mutex
	return progress.NewTracker(func(e benchProgress.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e.Phase {
		case benchProgress.PhaseQueued:
			fmt.Fprintf(w, "%s: %d acquirers queued\n", e.Scope, e.Total)
		case benchProgress.PhaseGranted:
			fmt.Fprintf(w, "\r%s: granted #%d of %d", e.Scope, e.Index+1, e.Total)
		case benchProgress.PhaseDone:
			fmt.Fprintf(w, "\n%s: done\n", e.Scope)
		}
	})
}

func dumpMetrics(out io.Writer, c *metrics.Collector) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}
