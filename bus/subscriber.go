package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fogfish/opts"
	"github.com/google/uuid"

	"github.com/agentic-robotics/ros3/pkg/uuidx"
)

var (
	// WithCapacity sets the delivery channel capacity. Must be
	// positive; there is no unbounded mode.
	WithCapacity = opts.ForName[Subscriber, int]("capacity")

	// WithPolicy selects the backpressure policy applied when the
	// channel is full.
	WithPolicy = opts.ForName[Subscriber, Policy]("policy")

	// WithSendTimeout bounds how long PolicyBlock parks a sender.
	// Zero fails fast; NoSendTimeout parks indefinitely.
	WithSendTimeout = opts.ForName[Subscriber, time.Duration]("sendTimeout")
)

// SubscriberStats is a polled snapshot of a subscriber's counters.
// Dropped counts messages lost to the channel's drop policy.
type SubscriberStats struct {
	Messages uint64 `json:"messages"`
	Bytes    uint64 `json:"bytes"`
	Dropped  uint64 `json:"dropped"`
}

// Subscriber is the receiving façade for one pattern. It is registered
// in the topic registry at creation and removed at Close; Close also
// wakes any goroutine parked in Recv.
type Subscriber struct {
	id      uuid.UUID
	pattern Pattern
	bus     *MessageBus
	ch      *ring

	capacity    int
	policy      Policy
	sendTimeout time.Duration

	closeOnce sync.Once
}

func newSubscriber(b *MessageBus, pattern Pattern, options []opts.Option[Subscriber]) (*Subscriber, error) {
	s := &Subscriber{
		id:          uuidx.New(),
		pattern:     pattern,
		bus:         b,
		capacity:    b.defaultCapacity,
		policy:      b.defaultPolicy,
		sendTimeout: b.defaultSendTimeout,
	}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	if s.capacity <= 0 {
		return nil, fmt.Errorf("bus: channel capacity must be positive, got %d", s.capacity)
	}
	s.ch = newRing(s.capacity, s.policy, s.sendTimeout)
	return s, nil
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Pattern returns the subscription pattern.
func (s *Subscriber) Pattern() Pattern { return s.pattern }

// Recv blocks until an envelope arrives, the subscriber closes
// (ErrSubscriberClosed) or the context ends. A context deadline maps
// to ErrRecvTimeout.
func (s *Subscriber) Recv(ctx context.Context) (Envelope, error) {
	return s.ch.recv(ctx)
}

// RecvTimeout is Recv bounded by a duration.
func (s *Subscriber) RecvTimeout(d time.Duration) (Envelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.ch.recv(ctx)
}

// TryRecv pops the next envelope without blocking. The second return
// is false when the queue is empty.
func (s *Subscriber) TryRecv() (Envelope, bool) {
	return s.ch.tryRecv()
}

// QueueLen reports how many envelopes are currently queued.
func (s *Subscriber) QueueLen() int {
	return s.ch.len()
}

// Stats returns the current counters. Polled, not pushed.
func (s *Subscriber) Stats() SubscriberStats {
	delivered, bytes, dropped := s.ch.stats()
	return SubscriberStats{Messages: delivered, Bytes: bytes, Dropped: dropped}
}

// Close unregisters the subscriber and wakes every parked reader and
// sender exactly once. Idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.bus.registry.unregister(s.pattern, s.id.String())
		s.bus.subscribers.Del(s.id.String())
		s.ch.close()
	})
}

// Decode deserializes an envelope's payload into T using the codec the
// envelope's format tag names in the subscriber's bus registry.
func Decode[T any](s *Subscriber, env Envelope) (T, error) {
	var v T
	c, err := s.bus.codecs.Get(env.Format)
	if err != nil {
		return v, err
	}
	if err := c.Unmarshal(env.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}
