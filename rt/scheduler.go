package rt

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler is a thread-safe priority queue of pending tasks. Ordering
// is a strict (priority rank, deadline ascending, enqueue order) key:
// ties break by priority first, then earliest deadline (tasks without a
// deadline sort after those with one), then FIFO.
//
// PopReady releases a task only once its scheduled time has arrived,
// which is how periodic tasks wait out their interval without a
// separate timer wheel.
type Scheduler struct {
	mu   sync.Mutex
	pq   taskQueue
	seq  uint64
	wake chan struct{}
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{wake: make(chan struct{}, 1)}
}

// Push enqueues a task and wakes one waiting worker.
func (s *Scheduler) Push(t *task) {
	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	heap.Push(&s.pq, t)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// PopReady removes and returns the highest-ranked task whose scheduled
// time is at or before now, or nil when none is ready.
func (s *Scheduler) PopReady(now time.Time) *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pq) == 0 {
		return nil
	}
	if s.pq[0].runAt.After(now) {
		return nil
	}
	return heap.Pop(&s.pq).(*task)
}

// NextRun returns the scheduled time of the head task. ok is false
// when the queue is empty.
func (s *Scheduler) NextRun() (next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pq) == 0 {
		return time.Time{}, false
	}
	return s.pq[0].runAt, true
}

// Len reports the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pq)
}

// Wake signals when a new task arrives; workers block on it between
// polls.
func (s *Scheduler) Wake() <-chan struct{} { return s.wake }

// drain empties the queue, returning everything still pending.
func (s *Scheduler) drain() []*task {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*task, len(s.pq))
	copy(pending, s.pq)
	s.pq = nil
	return pending
}

// taskQueue implements heap.Interface with the scheduling key.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if !a.deadline.Equal(b.deadline) {
		// A zero deadline means none: rank it after any concrete one.
		if a.deadline.IsZero() {
			return false
		}
		if b.deadline.IsZero() {
			return true
		}
		return a.deadline.Before(b.deadline)
	}
	return a.seq < b.seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
