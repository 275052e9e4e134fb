package disposable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestHandleDisposeOnce(t *testing.T) {
	calls := 0
	h := NewHandle(func() { calls++ })

	assert.False(t, h.Disposed())
	h.Dispose()
	h.Dispose()
	assert.True(t, h.Disposed())
	assert.Equal(t, 1, calls)
}

func TestAsyncHandleDisposeOnce(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	h := NewAsyncHandle(func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, h.Dispose(context.Background()), boom)
	assert.NoError(t, h.Dispose(context.Background()))
	assert.True(t, h.Disposed())
	assert.Equal(t, 1, calls)
}

func TestAggregatorOrder(t *testing.T) {
	var order []string
	var a Aggregator

	require.NoError(t, a.Add(NewHandle(func() { order = append(order, "handle") })))
	require.NoError(t, a.Add(func() { order = append(order, "func") }))
	c := &closer{}
	require.NoError(t, a.Add(c))
	assert.Equal(t, 3, a.Len())

	a.Dispose()
	a.Dispose()

	assert.Equal(t, []string{"handle", "func"}, order)
	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 0, a.Len())
	assert.ErrorIs(t, a.Add(func() {}), ErrDisposed)
}

func TestAggregatorRejectsUnknownTarget(t *testing.T) {
	var a Aggregator
	assert.Error(t, a.Add(42))
	assert.Equal(t, 0, a.Len())
}

func TestAsyncAggregatorJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("close failed")

	var a AsyncAggregator
	var ran []int
	require.NoError(t, a.Add(func(context.Context) error { ran = append(ran, 1); return errA }))
	require.NoError(t, a.Add(NewAsyncHandle(func(context.Context) error { ran = append(ran, 2); return nil })))
	require.NoError(t, a.Add(func() { ran = append(ran, 3) }))
	require.NoError(t, a.Add(&closer{err: errC}))

	err := a.Dispose(context.Background())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Equal(t, []int{1, 2, 3}, ran)

	assert.ErrorIs(t, a.Dispose(context.Background()), ErrDisposed)
	assert.ErrorIs(t, a.Add(func() {}), ErrDisposed)
}
