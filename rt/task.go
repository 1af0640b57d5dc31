package rt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Priority ranks tasks for dispatch. High tasks run on a reserved
// pool; Normal and Low share the larger one.
type Priority int

const (
	High Priority = iota
	Normal
	Low
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// State is a task's lifecycle position. Queued is the entry state;
// Completed, Cancelled, DeadlineMissed and Faulted are terminal. A
// periodic task re-enters Queued after each completed cycle.
type State int32

const (
	Queued State = iota
	Running
	Completed
	Cancelled
	DeadlineMissed
	Faulted
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case DeadlineMissed:
		return "deadline-missed"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case Cancelled, DeadlineMissed, Faulted:
		return true
	default:
		return false
	}
}

// Work is a task body. Cancellation is cooperative: the body must
// observe ctx and return promptly once it is done.
type Work func(ctx context.Context) error

// task is the scheduler's internal record for one submission.
type task struct {
	id       uuid.UUID
	priority Priority
	deadline time.Time     // zero means none
	interval time.Duration // >0 means periodic
	runAt    time.Time
	enqueued time.Time
	seq      uint64
	work     Work
	handle   *TaskHandle
}

func (t *task) periodic() bool { return t.interval > 0 }

// TaskHandle is the caller's view of a submitted task: observe its
// state, wait for it to finish, or cancel it.
type TaskHandle struct {
	id       uuid.UUID
	priority Priority

	state     atomic.Int32
	cancelled atomic.Bool
	cancel    context.CancelFunc

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func newTaskHandle(id uuid.UUID, priority Priority, cancel context.CancelFunc) *TaskHandle {
	return &TaskHandle{
		id:       id,
		priority: priority,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the task's unique identifier.
func (h *TaskHandle) ID() uuid.UUID { return h.id }

// Priority returns the priority the task was submitted with.
func (h *TaskHandle) Priority() Priority { return h.priority }

// State returns the task's current lifecycle state.
func (h *TaskHandle) State() State { return State(h.state.Load()) }

// Err returns the task's terminal error, if any. For a one-shot task
// it is the error returned by the body; for deadline misses, faults
// and cancellations it names the cause.
func (h *TaskHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the task reaches a state it will not leave: any
// terminal state, or Completed for a one-shot task. Periodic tasks
// stay open across cycles until cancelled or failed.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Cancel requests cooperative cancellation. A queued task resolves to
// Cancelled without running; a running body observes its context end.
// Safe to call more than once.
func (h *TaskHandle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		h.cancel()
	}
}

func (h *TaskHandle) setState(s State) {
	h.state.Store(int32(s))
}

func (h *TaskHandle) resolve(s State, err error) {
	h.setState(s)
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	// Release the task context so the executor root drops its child
	// reference; a settled task must not pin memory for the lifetime of
	// the executor.
	h.cancel()
	h.once.Do(func() { close(h.done) })
}
