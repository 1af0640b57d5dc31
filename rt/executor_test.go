package rt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitDone(t *testing.T, h *TaskHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s never finished (state %s)", h.ID(), h.State())
	}
}

func TestExecutorRunsTask(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	ran := make(chan struct{})
	h, err := e.Submit(func(context.Context) error {
		close(ran)
		return nil
	})
	require.NoError(t, err)

	waitDone(t, h)
	<-ran
	assert.Equal(t, Completed, h.State())
	assert.NoError(t, h.Err())
}

func TestExecutorReleasesTaskContext(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	ctxs := make(chan context.Context, 2)

	completed, err := e.Submit(func(ctx context.Context) error {
		ctxs <- ctx
		return nil
	})
	require.NoError(t, err)

	faulted, err := e.Submit(func(ctx context.Context) error {
		ctxs <- ctx
		panic("boom")
	})
	require.NoError(t, err)

	waitDone(t, completed)
	waitDone(t, faulted)

	// Settling a task cancels its context even when nobody called
	// Cancel; otherwise every task ever run would stay registered as a
	// child of the executor's root context until Shutdown.
	for i := 0; i < 2; i++ {
		taskCtx := <-ctxs
		assert.ErrorIs(t, taskCtx.Err(), context.Canceled)
	}
}

func TestExecutorBodyError(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	boom := errors.New("sensor offline")
	h, err := e.Submit(func(context.Context) error { return boom })
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, Completed, h.State())
	assert.ErrorIs(t, h.Err(), boom)
}

func TestExecutorDeadlineMiss(t *testing.T) {
	events := make(chan TaskEvent, 16)
	e, err := NewExecutor(WithEventHandler(func(ev TaskEvent) { events <- ev }))
	require.NoError(t, err)
	defer e.Shutdown()

	var ran atomic.Bool
	h, err := e.Submit(func(context.Context) error {
		ran.Store(true)
		return nil
	}, WithDeadline(time.Now().Add(-time.Millisecond)))
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, DeadlineMissed, h.State())

	// The miss is observable, and the body never ran late.
	var missErr *DeadlineMissedError
	require.True(t, errors.As(h.Err(), &missErr))
	assert.Equal(t, h.ID(), missErr.TaskID)
	assert.False(t, ran.Load())

	ev := <-events
	assert.Equal(t, DeadlineMissed, ev.State)
	assert.Equal(t, h.ID(), ev.TaskID)

	// Exactly one event: a missed task is terminal, periodic or not.
	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExecutorDeadlineMet(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	h, err := e.Submit(func(context.Context) error { return nil },
		WithDeadline(time.Now().Add(time.Minute)))
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, Completed, h.State())
	assert.NoError(t, h.Err())
}

func TestExecutorPanicFault(t *testing.T) {
	e, err := NewExecutor(WithHighWorkers(1), WithLowWorkers(1))
	require.NoError(t, err)
	defer e.Shutdown()

	h, err := e.Submit(func(context.Context) error {
		panic("bad pointer")
	})
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, Faulted, h.State())

	var panicErr *PanicError
	require.True(t, errors.As(h.Err(), &panicErr))
	assert.Equal(t, "bad pointer", panicErr.Value)

	// The worker survived the fault and keeps dispatching.
	h2, err := e.Submit(func(context.Context) error { return nil })
	require.NoError(t, err)
	waitDone(t, h2)
	assert.Equal(t, Completed, h2.State())
}

func TestExecutorCancelQueued(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	var ran atomic.Bool
	h, err := e.Submit(func(context.Context) error {
		ran.Store(true)
		return nil
	}, WithStartAt(time.Now().Add(50*time.Millisecond)))
	require.NoError(t, err)

	h.Cancel()
	waitDone(t, h)
	assert.Equal(t, Cancelled, h.State())
	assert.False(t, ran.Load())
}

func TestExecutorCancelRunning(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	started := make(chan struct{})
	h, err := e.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	<-started
	h.Cancel()
	waitDone(t, h)
	assert.Equal(t, Cancelled, h.State())
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestExecutorPeriodic(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	var runs atomic.Int32
	h, err := e.Submit(func(context.Context) error {
		runs.Add(1)
		return nil
	}, Periodic(10*time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return runs.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)

	// Completing a cycle does not finish a periodic task.
	select {
	case <-h.Done():
		t.Fatal("periodic task finished without being cancelled")
	default:
	}

	h.Cancel()
	waitDone(t, h)
	assert.Equal(t, Cancelled, h.State())

	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestExecutorPeriodicDriftFree(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	const interval = 50 * time.Millisecond
	const cycles = 4

	var stamps []time.Time
	var mu sync.Mutex
	done := make(chan struct{})

	h, err := e.Submit(func(context.Context) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		if n == cycles {
			close(done)
		}
		// A slow body must not push later cycles back.
		time.Sleep(interval / 2)
		return nil
	}, Periodic(interval))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("periodic task never reached enough cycles")
	}
	h.Cancel()
	waitDone(t, h)

	mu.Lock()
	elapsed := stamps[cycles-1].Sub(stamps[0])
	mu.Unlock()

	// Anchored rescheduling keeps cycle N near N*interval; a drifting
	// schedule would accumulate the body's sleep on every cycle.
	drifting := time.Duration(cycles-1) * (interval + interval/2)
	assert.Less(t, elapsed, drifting-interval/4)
}

func TestExecutorHighPoolReserved(t *testing.T) {
	// With the shared pool's only worker wedged, High tasks still run.
	e, err := NewExecutor(WithHighWorkers(1), WithLowWorkers(1))
	require.NoError(t, err)
	defer e.Shutdown()

	wedged := make(chan struct{})
	blocker, err := e.Submit(func(ctx context.Context) error {
		close(wedged)
		<-ctx.Done()
		return ctx.Err()
	}, WithPriority(Low))
	require.NoError(t, err)
	<-wedged

	h, err := e.Submit(func(context.Context) error { return nil },
		WithPriority(High))
	require.NoError(t, err)

	waitDone(t, h)
	assert.Equal(t, Completed, h.State())

	blocker.Cancel()
	waitDone(t, blocker)
}

func TestExecutorLatencyRecorded(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	h, err := e.Submit(func(context.Context) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}, WithPriority(High))
	require.NoError(t, err)
	waitDone(t, h)

	queue := e.Latency().QueueStats(High)
	run := e.Latency().RunStats(High)
	assert.Equal(t, int64(1), queue.Count)
	assert.Equal(t, int64(1), run.Count)
	assert.GreaterOrEqual(t, run.Max, 2*time.Millisecond)

	// Nothing ran at Normal, so its histograms stay empty.
	assert.Zero(t, e.Latency().QueueStats(Normal).Count)
}

func TestExecutorShutdown(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)

	var ran atomic.Bool
	pending, err := e.Submit(func(context.Context) error {
		ran.Store(true)
		return nil
	}, WithStartAt(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	e.Shutdown()
	e.Shutdown()

	// Still-queued work resolves instead of leaking.
	waitDone(t, pending)
	assert.Equal(t, Cancelled, pending.State())
	assert.ErrorIs(t, pending.Err(), ErrExecutorShutdown)
	assert.False(t, ran.Load())

	_, err = e.Submit(func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrExecutorShutdown)
}

func TestExecutorEventHandler(t *testing.T) {
	events := make(chan TaskEvent, 16)
	e, err := NewExecutor(WithEventHandler(func(ev TaskEvent) { events <- ev }))
	require.NoError(t, err)
	defer e.Shutdown()

	h, err := e.Submit(func(context.Context) error { return nil },
		WithPriority(Low))
	require.NoError(t, err)
	waitDone(t, h)

	ev := <-events
	assert.Equal(t, h.ID(), ev.TaskID)
	assert.Equal(t, Completed, ev.State)
	assert.Equal(t, Low, ev.Priority)
	assert.NoError(t, ev.Err)
	assert.False(t, time.Time(ev.Timestamp).IsZero())
}

func TestSubmitValidation(t *testing.T) {
	e, err := NewExecutor()
	require.NoError(t, err)
	defer e.Shutdown()

	_, err = e.Submit(nil)
	assert.Error(t, err)

	_, err = e.Submit(func(context.Context) error { return nil }, Periodic(0))
	assert.Error(t, err)

	_, err = NewExecutor(WithHighWorkers(0))
	assert.Error(t, err)
	_, err = NewExecutor(WithLowWorkers(-1))
	assert.Error(t, err)
}
