package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/scopelock/lock/scoped"
)

func TestCollectorCounts(t *testing.T) {
	c := New("test")
	table := scoped.NewTable[string](scoped.WithObserver(c))
	c.Bind(table)
	ctx := context.Background()

	h1, err := table.Acquire(ctx, "k")
	require.NoError(t, err)

	granted := make(chan *scoped.Handle[string])
	go func() {
		h, err := table.Acquire(ctx, "k")
		assert.NoError(t, err)
		granted <- h
	}()
	require.Eventually(t, func() bool { return table.Stats().Waiters == 1 }, 2*time.Second, time.Millisecond)

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error)
	go func() {
		_, err := table.Acquire(cctx, "k")
		done <- err
	}()
	require.Eventually(t, func() bool { return table.Stats().Waiters == 2 }, 2*time.Second, time.Millisecond)

	expected := `
# HELP scopelock_active_scopes Scopes currently held.
# TYPE scopelock_active_scopes gauge
scopelock_active_scopes{table="test"} 1
# HELP scopelock_queued_waiters Acquisitions waiting across all scopes.
# TYPE scopelock_queued_waiters gauge
scopelock_queued_waiters{table="test"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"scopelock_active_scopes", "scopelock_queued_waiters"))

	cancel()
	assert.ErrorIs(t, <-done, scoped.ErrCancelled)

	h1.Release()
	(<-granted).Release()

	assert.InDelta(t, 1, testutil.ToFloat64(c.acquired.WithLabelValues("false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.acquired.WithLabelValues("true")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.cancelled), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.released.WithLabelValues("false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.released.WithLabelValues("true")), 0)
	assert.Equal(t, scoped.Stats{}, table.Stats())
}

func TestCollectorRegisters(t *testing.T) {
	table, c := NewTable[string]("bench")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	require.NoError(t, table.Do(context.Background(), []string{"a"}, func(context.Context) error { return nil }))

	n, err := testutil.GatherAndCount(reg, "scopelock_acquired_total", "scopelock_released_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollectorUnboundOmitsGauges(t *testing.T) {
	c := New("idle")
	assert.Zero(t, testutil.CollectAndCount(c, "scopelock_active_scopes"))
}
