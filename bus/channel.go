package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Policy selects what a publisher-side send does when the subscriber's
// channel is full.
type Policy int

const (
	// PolicyBlock parks the sender until space frees up, bounded by the
	// subscriber's send timeout when one is configured.
	PolicyBlock Policy = iota
	// PolicyDropNewest rejects the incoming message and counts it.
	PolicyDropNewest
	// PolicyDropOldest evicts the queue head to admit the incoming
	// message, counting the eviction.
	PolicyDropOldest
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDropNewest:
		return "drop-newest"
	case PolicyDropOldest:
		return "drop-oldest"
	default:
		return "policy(?)"
	}
}

// NoSendTimeout makes PolicyBlock park senders indefinitely (until the
// queue drains, the subscriber closes, or the publish context ends).
const NoSendTimeout time.Duration = -1

// ring is the per-subscriber bounded MPSC delivery queue. Capacity is
// fixed at construction; there is no unbounded mode. Producers contend
// on a short critical section; parked senders and the single receiver
// wait on buffered signal channels so no lock is ever held while
// blocked.
type ring struct {
	mu    sync.Mutex
	buf   []Envelope
	head  int
	count int

	dropped        uint64
	delivered      uint64
	deliveredBytes uint64

	policy      Policy
	sendTimeout time.Duration // 0 fails fast, NoSendTimeout parks forever

	readable chan struct{} // capacity 1: a message was enqueued
	writable chan struct{} // capacity 1: a slot was freed
	done     chan struct{} // closed exactly once on close

	closeOnce sync.Once
}

func newRing(capacity int, policy Policy, sendTimeout time.Duration) *ring {
	return &ring{
		buf:         make([]Envelope, capacity),
		policy:      policy,
		sendTimeout: sendTimeout,
		readable:    make(chan struct{}, 1),
		writable:    make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// send enqueues the envelope according to the channel's policy. Drop
// policies never block and never fail on a full queue; they count the
// lost message instead. Delivery is at-most-once, so dropped messages
// are not retried.
func (r *ring) send(ctx context.Context, env Envelope) error {
	switch r.policy {
	case PolicyDropNewest:
		return r.sendDropNewest(env)
	case PolicyDropOldest:
		return r.sendDropOldest(env)
	default:
		return r.sendBlocking(ctx, env)
	}
}

func (r *ring) sendDropNewest(env Envelope) error {
	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		return ErrSubscriberClosed
	}
	if r.count == len(r.buf) {
		r.dropped++
		r.mu.Unlock()
		return nil
	}
	r.push(env)
	r.mu.Unlock()
	r.signal(r.readable)
	return nil
}

func (r *ring) sendDropOldest(env Envelope) error {
	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		return ErrSubscriberClosed
	}
	if r.count == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		r.dropped++
	}
	r.push(env)
	r.mu.Unlock()
	r.signal(r.readable)
	return nil
}

func (r *ring) sendBlocking(ctx context.Context, env Envelope) error {
	var timer *time.Timer
	var expired <-chan time.Time
	if r.sendTimeout > 0 {
		timer = time.NewTimer(r.sendTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		r.mu.Lock()
		if r.isClosed() {
			r.mu.Unlock()
			return ErrSubscriberClosed
		}
		if r.count < len(r.buf) {
			r.push(env)
			r.mu.Unlock()
			r.signal(r.readable)
			return nil
		}
		r.mu.Unlock()

		if r.sendTimeout == 0 {
			// Fail-fast block policy: a full queue times out immediately.
			return ErrSendTimeout
		}

		select {
		case <-r.writable:
		case <-expired:
			return ErrSendTimeout
		case <-r.done:
			return ErrSubscriberClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// recv blocks until a message arrives, the channel closes, or the
// context ends. A context deadline maps to ErrRecvTimeout.
func (r *ring) recv(ctx context.Context) (Envelope, error) {
	for {
		r.mu.Lock()
		if r.count > 0 {
			env := r.pop()
			r.mu.Unlock()
			r.signal(r.writable)
			return env, nil
		}
		closed := r.isClosed()
		r.mu.Unlock()
		if closed {
			return Envelope{}, ErrSubscriberClosed
		}

		select {
		case <-r.readable:
		case <-r.done:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Envelope{}, ErrRecvTimeout
			}
			return Envelope{}, ctx.Err()
		}
	}
}

// tryRecv pops the head without blocking.
func (r *ring) tryRecv() (Envelope, bool) {
	r.mu.Lock()
	if r.count == 0 {
		r.mu.Unlock()
		return Envelope{}, false
	}
	env := r.pop()
	r.mu.Unlock()
	r.signal(r.writable)
	return env, true
}

// close drains nothing and wakes every parked sender and the receiver.
// Idempotent: subsequent calls are no-ops.
func (r *ring) close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *ring) stats() (delivered, bytes, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered, r.deliveredBytes, r.dropped
}

// push requires r.mu held and a free slot.
func (r *ring) push(env Envelope) {
	r.buf[(r.head+r.count)%len(r.buf)] = env
	r.count++
	r.delivered++
	r.deliveredBytes += uint64(len(env.Payload))
}

// pop requires r.mu held and a non-empty queue.
func (r *ring) pop() Envelope {
	env := r.buf[r.head]
	r.buf[r.head] = Envelope{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return env
}

func (r *ring) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *ring) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
