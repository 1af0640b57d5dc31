package rt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/agentic-robotics/ros3/pkg/slogx"
	"github.com/agentic-robotics/ros3/pkg/uuidx"
)

const (
	defaultHighWorkers = 2
	defaultLowWorkers  = 4
)

var (
	// WithPriority sets the task's priority class. Defaults to Normal.
	WithPriority = opts.ForName[task, Priority]("priority")

	// WithDeadline sets the instant by which the task must start.
	// Missing it is observable, never silent.
	WithDeadline = opts.ForName[task, time.Time]("deadline")

	// WithStartAt delays dispatch until the given instant.
	WithStartAt = opts.ForName[task, time.Time]("runAt")
)

// Periodic makes the task re-run at a fixed interval. Rescheduling is
// drift-free: each cycle is anchored to the previous scheduled time,
// not to when the body actually finished.
func Periodic(interval time.Duration) opts.Option[task] {
	return opts.Type[task](func(t *task) error {
		if interval <= 0 {
			return fmt.Errorf("rt: periodic interval must be positive, got %s", interval)
		}
		t.interval = interval
		return nil
	})
}

// WithHighWorkers sizes the pool reserved for High tasks.
func WithHighWorkers(n int) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		if n <= 0 {
			return fmt.Errorf("rt: high worker count must be positive, got %d", n)
		}
		e.highWorkers = n
		return nil
	})
}

// WithLowWorkers sizes the pool shared by Normal and Low tasks.
func WithLowWorkers(n int) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		if n <= 0 {
			return fmt.Errorf("rt: low worker count must be positive, got %d", n)
		}
		e.lowWorkers = n
		return nil
	})
}

// WithEventHandler installs the callback that receives task lifecycle
// events: completions, cancellations, faults and deadline misses. The
// callback runs on worker goroutines and must not block.
var WithEventHandler = opts.ForName[Executor, func(TaskEvent)]("onEvent")

// TaskEvent reports a task lifecycle transition to the supervising
// component.
type TaskEvent struct {
	TaskID    uuid.UUID       `json:"task_id"`
	State     State           `json:"state"`
	Priority  Priority        `json:"priority"`
	Err       error           `json:"error,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// Executor dispatches scheduled tasks onto two fixed worker pools: a
// small pool reserved for High tasks and a larger one for Normal and
// Low. Workers pull strictly through each scheduler's PopReady, so
// dispatch order is exactly the scheduling key.
type Executor struct {
	high *Scheduler
	low  *Scheduler

	highWorkers int
	lowWorkers  int

	tracker *LatencyTracker
	onEvent func(TaskEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewExecutor builds the executor and starts its worker pools.
func NewExecutor(options ...opts.Option[Executor]) (*Executor, error) {
	e := &Executor{
		high:        NewScheduler(),
		low:         NewScheduler(),
		highWorkers: defaultHighWorkers,
		lowWorkers:  defaultLowWorkers,
		tracker:     NewLatencyTracker(),
	}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	for i := 0; i < e.highWorkers; i++ {
		e.wg.Add(1)
		go e.worker(e.high)
	}
	for i := 0; i < e.lowWorkers; i++ {
		e.wg.Add(1)
		go e.worker(e.low)
	}
	return e, nil
}

// Latency exposes the executor's latency tracker.
func (e *Executor) Latency() *LatencyTracker { return e.tracker }

// Submit schedules work and returns its handle. High tasks go to the
// reserved pool's queue; everything else to the shared one.
func (e *Executor) Submit(work Work, options ...opts.Option[task]) (*TaskHandle, error) {
	if work == nil {
		return nil, errors.New("rt: work is required")
	}
	if e.closed.Load() {
		return nil, ErrExecutorShutdown
	}

	now := time.Now()
	t := &task{
		id:       uuidx.New(),
		priority: Normal,
		runAt:    now,
		enqueued: now,
		work:     work,
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(e.ctx)
	t.handle = newTaskHandle(t.id, t.priority, cancel)
	t.handle.setState(Queued)
	t.work = wrapWork(taskCtx, work)

	e.schedulerFor(t.priority).Push(t)
	return t.handle, nil
}

// Shutdown stops the workers and resolves every still-queued task as
// Cancelled with ErrExecutorShutdown. Idempotent.
func (e *Executor) Shutdown() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.cancel()
	e.wg.Wait()

	for _, t := range append(e.high.drain(), e.low.drain()...) {
		t.handle.resolve(Cancelled, ErrExecutorShutdown)
		e.emit(t, Cancelled, ErrExecutorShutdown)
	}
}

func (e *Executor) schedulerFor(p Priority) *Scheduler {
	if p == High {
		return e.high
	}
	return e.low
}

func (e *Executor) worker(s *Scheduler) {
	defer e.wg.Done()
	for {
		t := s.PopReady(time.Now())
		if t == nil {
			if !e.waitForWork(s) {
				return
			}
			continue
		}
		e.dispatch(s, t)
	}
}

// waitForWork parks the worker until a push, the head task's scheduled
// time, or shutdown. Returns false when the executor is stopping.
func (e *Executor) waitForWork(s *Scheduler) bool {
	var timer *time.Timer
	var due <-chan time.Time
	if next, ok := s.NextRun(); ok {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer = time.NewTimer(wait)
		due = timer.C
		defer timer.Stop()
	}

	select {
	case <-s.Wake():
		return true
	case <-due:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Executor) dispatch(s *Scheduler, t *task) {
	h := t.handle
	now := time.Now()

	if h.cancelled.Load() {
		h.resolve(Cancelled, context.Canceled)
		e.emit(t, Cancelled, context.Canceled)
		return
	}

	if !t.deadline.IsZero() && now.After(t.deadline) {
		err := &DeadlineMissedError{TaskID: t.id, Deadline: t.deadline, At: now}
		h.resolve(DeadlineMissed, err)
		e.emit(t, DeadlineMissed, err)
		slog.Warn("task missed deadline",
			slogx.Stringer("task", t.id),
			slog.String("priority", t.priority.String()),
			slogx.Duration("late_by", now.Sub(t.deadline)))
		return
	}

	h.setState(Running)
	e.tracker.RecordQueue(t.priority, now.Sub(t.enqueued))

	start := time.Now()
	err := runProtected(t.work)
	e.tracker.RecordRun(t.priority, time.Since(start))

	var panicErr *PanicError
	switch {
	case errors.As(err, &panicErr):
		h.resolve(Faulted, err)
		e.emit(t, Faulted, err)
		slog.Warn("task faulted", slogx.Stringer("task", t.id), slogx.Error(err))
	case h.cancelled.Load():
		h.resolve(Cancelled, err)
		e.emit(t, Cancelled, err)
	case t.periodic():
		h.setState(Queued)
		e.emit(t, Completed, err)
		e.reschedule(s, t)
	default:
		h.resolve(Completed, err)
		e.emit(t, Completed, err)
	}
}

// reschedule pushes the next cycle of a periodic task, anchored to the
// previous scheduled time so the period does not drift.
func (e *Executor) reschedule(s *Scheduler, t *task) {
	if e.closed.Load() {
		t.handle.resolve(Cancelled, ErrExecutorShutdown)
		e.emit(t, Cancelled, ErrExecutorShutdown)
		return
	}
	t.runAt = t.runAt.Add(t.interval)
	if !t.deadline.IsZero() {
		t.deadline = t.deadline.Add(t.interval)
	}
	t.enqueued = time.Now()
	s.Push(t)
}

func (e *Executor) emit(t *task, state State, err error) {
	if e.onEvent == nil {
		return
	}
	e.onEvent(TaskEvent{
		TaskID:    t.id,
		State:     state,
		Priority:  t.priority,
		Err:       err,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func wrapWork(ctx context.Context, work Work) Work {
	return func(context.Context) error {
		return work(ctx)
	}
}

// runProtected runs the body and converts a panic into a PanicError so
// a faulting task cannot take down its worker.
func runProtected(work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return work(context.Background())
}
