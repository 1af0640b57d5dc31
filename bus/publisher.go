package bus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fogfish/opts"
	"github.com/google/uuid"

	"github.com/agentic-robotics/ros3/codec"
	"github.com/agentic-robotics/ros3/pkg/uuidx"
)

// WithPublisherFormat overrides the bus default codec format for one
// publisher.
var WithPublisherFormat = opts.ForName[Publisher, codec.Format]("format")

// PublisherStats is a polled snapshot of a publisher's counters.
type PublisherStats struct {
	Messages uint64 `json:"messages"`
	Bytes    uint64 `json:"bytes"`
}

// Publisher is the sending façade for one topic. It owns a monotonic
// sequence counter; envelopes it emits carry strictly increasing
// sequence numbers that are never reused. A publisher is owned by its
// creator and closing it is terminal.
type Publisher struct {
	id     uuid.UUID
	topic  Topic
	bus    *MessageBus
	format codec.Format

	seq      atomic.Uint64
	messages atomic.Uint64
	bytes    atomic.Uint64
	closed   atomic.Bool
}

func newPublisher(b *MessageBus, topic Topic, options []opts.Option[Publisher]) (*Publisher, error) {
	p := &Publisher{
		id:     uuidx.New(),
		topic:  topic,
		bus:    b,
		format: b.defaultFormat,
	}
	if err := opts.Apply(p, options); err != nil {
		return nil, err
	}
	return p, nil
}

// ID returns the publisher's unique identifier.
func (p *Publisher) ID() uuid.UUID { return p.id }

// Topic returns the topic this publisher writes to.
func (p *Publisher) Topic() Topic { return p.topic }

// Publish encodes v with the publisher's codec and fans the envelope
// out to every matching subscriber. Errors from individual delivery
// channels are joined; a failed delivery to one subscriber does not
// prevent delivery to the others.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	payload, err := p.bus.codecs.Marshal(p.format, v)
	if err != nil {
		return err
	}

	env := Envelope{
		Topic:       p.topic,
		Payload:     payload,
		Format:      p.format,
		Sequence:    p.seq.Add(1),
		PublishedAt: time.Now(),
	}

	p.messages.Add(1)
	p.bytes.Add(uint64(len(payload)))

	return p.bus.route(ctx, env)
}

// Stats returns the current counters. Polled, not pushed.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Messages: p.messages.Load(),
		Bytes:    p.bytes.Load(),
	}
}

// Close retires the publisher. Further Publish calls return
// ErrPublisherClosed. Idempotent.
func (p *Publisher) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.bus.publishers.Del(p.id.String())
	}
}
