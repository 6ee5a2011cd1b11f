package threadloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *ThreadLoop {
	t.Helper()
	tl := New(t.Name(), nil)
	require.NoError(t, tl.Start())
	t.Cleanup(tl.Stop)
	return tl
}

func TestStartStopIdempotentStop(t *testing.T) {
	t.Parallel()
	tl := New(t.Name(), nil)
	require.NoError(t, tl.Start())
	tl.Stop()
	assert.NotPanics(t, func() { tl.Stop() }, "Stop must be safe to call again")
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)
	err := tl.Start()
	assert.Error(t, err)
}

func TestScheduleRunsOnWorker(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)

	var ran atomic.Bool
	var sawInThread atomic.Bool
	require.NoError(t, WithLock(tl, func() error {
		tl.Schedule(func() {
			sawInThread.Store(tl.InThread())
			ran.Store(true)
		})
		return nil
	}))

	require.Eventually(t, ran.Load, time.Second, time.Millisecond, "scheduled work did not run")
	assert.True(t, sawInThread.Load())
}

func TestRendezvousSignalWaitAccept(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)

	var result int
	tl.Lock()
	tl.Schedule(func() {
		// Runs on the worker goroutine with the loop's lock already held
		// by the dispatch loop itself (the lock-around-poll trick), so
		// it must not try to acquire it again.
		result = 42
		tl.Signal(true)
	})
	tl.Wait()
	got := result
	tl.Accept()
	tl.Unlock()

	assert.Equal(t, 42, got)
}

func TestLockPanicsFromWorker(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)

	done := make(chan any, 1)
	tl.Schedule(func() {
		defer func() { done <- recover() }()
		tl.Lock()
	})
	v := <-done
	require.NotNil(t, v)
	_, ok := v.(AffinityError)
	assert.True(t, ok)
}

func TestSignalPanicsFromExternalGoroutine(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)

	assert.PanicsWithValue(t, AffinityError{Op: "Signal"}, func() {
		tl.Signal(false)
	})
}

func TestWaitPanicsFromWorker(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)

	done := make(chan any, 1)
	tl.Schedule(func() {
		defer func() { done <- recover() }()
		tl.Wait()
	})
	v := <-done
	require.NotNil(t, v)
	_, ok := v.(AffinityError)
	assert.True(t, ok)
}

func TestStopPanicsFromWorker(t *testing.T) {
	t.Parallel()
	tl := New(t.Name(), nil)
	require.NoError(t, tl.Start())

	done := make(chan any, 1)
	tl.Schedule(func() {
		defer func() { done <- recover() }()
		tl.Stop()
	})
	v := <-done
	require.NotNil(t, v)
	_, ok := v.(AffinityError)
	assert.True(t, ok)
	tl.Stop()
}

func TestInThreadFalseForExternalGoroutine(t *testing.T) {
	t.Parallel()
	tl := newTestLoop(t)
	assert.False(t, tl.InThread())
}
