package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(nil, WithWorkers(3), WithQueueSize(2))
	var n atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) { n.Add(1) }))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(20), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(nil, WithWorkers(2))
	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			c := cur.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			cur.Add(-1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := NewPool(nil)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrQueueClosed)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSubmitHonoursContextWhenFull(t *testing.T) {
	p := NewPool(nil, WithWorkers(1), WithQueueSize(1))
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, func(context.Context) {}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolTaskTimeoutAndPanic(t *testing.T) {
	p := NewPool(nil, WithWorkers(1), WithTaskTimeout(10*time.Millisecond))
	var sawDeadline atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		sawDeadline.Store(true)
	}))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, sawDeadline.Load())
}
