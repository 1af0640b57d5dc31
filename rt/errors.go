package rt

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrExecutorShutdown is returned by Submit after Shutdown, and set as
// the terminal error of tasks still queued when the executor stops.
var ErrExecutorShutdown = errors.New("rt: executor shut down")

// DeadlineMissedError reports a task that could not be dispatched
// before its deadline. It is delivered through the event callback and
// via the task handle; the task body never runs.
type DeadlineMissedError struct {
	TaskID   uuid.UUID
	Deadline time.Time
	At       time.Time
}

func (e *DeadlineMissedError) Error() string {
	return fmt.Sprintf("rt: task %s missed deadline %s by %s",
		e.TaskID, e.Deadline.Format(time.RFC3339Nano), e.At.Sub(e.Deadline))
}

// PanicError wraps a panic recovered from a task body. The worker that
// caught it keeps running.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rt: task panicked: %v", e.Value)
}
