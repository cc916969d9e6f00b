package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shuntia/lunaris/pkg/logger"
	"github.com/shuntia/lunaris/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func TestSubmit_PriorityOrdering(t *testing.T) {
	p := pool.New(1, 1, 1, 1)

	// Hold the single default worker busy so all three submissions queue up
	// before any are popped.
	gate := make(chan struct{})
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: func() { <-gate }}))

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	require.NoError(t, p.Submit(pool.Job{Priority: pool.Deferred, Fn: record("deferred")}))
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: record("normal")}))
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Immediate, Fn: record("immediate")}))

	close(gate)
	p.JoinForeground()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"immediate", "normal", "deferred"}, order)
}

func TestSubmit_FrameBackpressure(t *testing.T) {
	p := pool.New(1, 1, 1, 1)

	gate := make(chan struct{})
	blocker := pool.Job{Priority: pool.VideoFrame, Fn: func() { <-gate }}
	require.NoError(t, p.Submit(blocker))

	var okCount, fullCount int
	for i := 0; i < 1024; i++ {
		err := p.Submit(pool.Job{Priority: pool.VideoFrame, Fn: func() {}})
		if err == nil {
			okCount++
		} else if errors.Is(err, pool.ErrRenderQueueFull) {
			fullCount++
		}
	}

	err := p.Submit(pool.Job{Priority: pool.VideoFrame, Fn: func() {}})
	assert.ErrorIs(t, err, pool.ErrRenderQueueFull)

	assert.Equal(t, 1024, okCount)
	assert.Equal(t, 0, fullCount)

	close(gate)
	p.JoinForeground()
}

func TestJoinForeground_ExcludesBackground(t *testing.T) {
	p := pool.New(1, 1, 1, 1)

	gate := make(chan struct{})
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Background, Fn: func() { <-gate }}))

	done := make(chan struct{})
	go func() {
		p.JoinForeground()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("JoinForeground should not wait on background-priority work")
	}

	close(gate)
	p.JoinAll()
}

func TestJoinForeground_ReturnsImmediatelyWhenEmpty(t *testing.T) {
	p := pool.New(2, 2, 2, 2)

	done := make(chan struct{})
	go func() {
		p.JoinForeground()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("JoinForeground should return immediately with nothing in flight")
	}
}

func TestReconfigure_PreservesQueuedWork(t *testing.T) {
	p := pool.New(1, 1, 1, 1)

	gate := make(chan struct{})
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: func() { <-gate }}))

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: func() { ran.Add(1) }}))
	}

	reconfigureDone := make(chan struct{})
	go func() {
		p.Reconfigure(3, 2, 2)
		close(reconfigureDone)
	}()

	time.Sleep(20 * time.Millisecond)
	close(gate)

	select {
	case <-reconfigureDone:
	case <-time.After(time.Second):
		t.Fatal("Reconfigure did not return once its blocking job unblocked")
	}

	p.JoinForeground()

	assert.EqualValues(t, 5, ran.Load())
}

func TestReconfigure_ZeroZeroZeroNormalizesToOnes(t *testing.T) {
	p := pool.New(4, 4, 4, 1)
	p.Reconfigure(0, 0, 0)

	profile := p.Profile()
	assert.EqualValues(t, 4, profile.RunningTasks) // default=1 frame=1 background=1, async untouched at 1
}

func TestWorkerPanic_DoesNotCrashPool(t *testing.T) {
	p := pool.New(2, 1, 1, 1)

	require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: func() { panic("boom") }}))

	var ran atomic.Bool
	require.NoError(t, p.Submit(pool.Job{Priority: pool.Normal, Fn: func() { ran.Store(true) }}))

	p.JoinForeground()
	assert.True(t, ran.Load())
}

func TestSubmitAsync_RunsFutureAndJoins(t *testing.T) {
	p := pool.New(1, 1, 1, 2)

	var ran atomic.Bool
	err := p.SubmitAsync(pool.AsyncJob{
		Priority: pool.Normal,
		Factory: func() pool.Future {
			return pool.FutureFunc(func(ctx context.Context) error {
				ran.Store(true)
				return nil
			})
		},
	})
	require.NoError(t, err)

	p.JoinForeground()
	assert.True(t, ran.Load())
}
