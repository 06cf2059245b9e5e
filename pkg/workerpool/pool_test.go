package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsJobError(t *testing.T) {
	p := New(&Config{MaxWorkers: 2, QueueSize: 4}, nil)
	defer p.Shutdown(context.Background())

	want := errors.New("boom")
	err := p.Submit(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestEachRunsEveryItem(t *testing.T) {
	p := New(&Config{MaxWorkers: 3, QueueSize: 1}, nil)
	defer p.Shutdown(context.Background())

	var sum atomic.Int64
	items := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	err := Each(context.Background(), p, items, func(_ context.Context, n int64) error {
		sum.Add(n)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), sum.Load())
}

func TestEachJoinsErrors(t *testing.T) {
	p := New(nil, nil)
	defer p.Shutdown(context.Background())

	err := Each(context.Background(), p, []int{1, 2, 3}, func(_ context.Context, n int) error {
		if n%2 == 1 {
			return errors.New("odd")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd")
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.True(t, p.IsClosed())

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerPoolClosed)
	err = p.SubmitAsync(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerPoolClosed)
}
