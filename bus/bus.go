package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"

	"github.com/agentic-robotics/ros3/codec"
	"github.com/agentic-robotics/ros3/pkg/slogx"
)

const (
	defaultChannelCapacity = 128
	defaultSendTimeout     = 100 * time.Millisecond
)

var (
	// WithDefaultFormat sets the codec format publishers inherit.
	WithDefaultFormat = opts.ForName[MessageBus, codec.Format]("defaultFormat")

	// WithDefaultPolicy sets the backpressure policy subscribers
	// inherit.
	WithDefaultPolicy = opts.ForName[MessageBus, Policy]("defaultPolicy")

	// WithDefaultSendTimeout sets the PolicyBlock timeout subscribers
	// inherit.
	WithDefaultSendTimeout = opts.ForName[MessageBus, time.Duration]("defaultSendTimeout")
)

// WithDefaultCapacity sets the delivery channel capacity subscribers
// inherit. Must be positive.
func WithDefaultCapacity(n int) opts.Option[MessageBus] {
	return opts.Type[MessageBus](func(b *MessageBus) error {
		if n <= 0 {
			return fmt.Errorf("bus: default capacity must be positive, got %d", n)
		}
		b.defaultCapacity = n
		return nil
	})
}

// WithCodec registers an additional codec on the bus.
func WithCodec(c codec.Codec) opts.Option[MessageBus] {
	return opts.Type[MessageBus](func(b *MessageBus) error {
		if c == nil {
			return errors.New("bus: codec is required")
		}
		b.codecs.Register(c)
		return nil
	})
}

// MessageBus is the explicit context object every publisher and
// subscriber hangs off. Lifecycle is New/Shutdown; there is no ambient
// global bus.
type MessageBus struct {
	registry    *registry
	codecs      *codec.Registry
	publishers  *haxmap.Map[string, *Publisher]
	subscribers *haxmap.Map[string, *Subscriber]

	defaultCapacity    int
	defaultFormat      codec.Format
	defaultPolicy      Policy
	defaultSendTimeout time.Duration

	closed   atomic.Bool
	shutOnce sync.Once
}

// New constructs a bus with the built-in codecs and the given defaults.
func New(options ...opts.Option[MessageBus]) (*MessageBus, error) {
	b := &MessageBus{
		registry:           newRegistry(),
		codecs:             codec.NewRegistry(),
		publishers:         haxmap.New[string, *Publisher](),
		subscribers:        haxmap.New[string, *Subscriber](),
		defaultCapacity:    defaultChannelCapacity,
		defaultFormat:      codec.FormatCDR,
		defaultPolicy:      PolicyBlock,
		defaultSendTimeout: defaultSendTimeout,
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	return b, nil
}

// Codecs exposes the bus codec registry.
func (b *MessageBus) Codecs() *codec.Registry { return b.codecs }

// Publisher creates a publisher for a concrete topic. Wildcards are
// rejected with ErrTopicInvalid.
func (b *MessageBus) Publisher(topic string, options ...opts.Option[Publisher]) (*Publisher, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	t, err := NewTopic(topic)
	if err != nil {
		return nil, err
	}
	p, err := newPublisher(b, t, options)
	if err != nil {
		return nil, err
	}
	b.publishers.Set(p.id.String(), p)
	slog.Debug("publisher registered",
		slogx.Topic(t),
		slog.String("format", p.format.String()))
	return p, nil
}

// Subscribe registers a subscriber for a pattern. The subscriber's
// delivery channel is bounded by its capacity option (bus default when
// unset).
func (b *MessageBus) Subscribe(pattern string, options ...opts.Option[Subscriber]) (*Subscriber, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	p, err := NewPattern(pattern)
	if err != nil {
		return nil, err
	}
	s, err := newSubscriber(b, p, options)
	if err != nil {
		return nil, err
	}
	b.registry.register(p, s.id.String(), s.ch)
	b.subscribers.Set(s.id.String(), s)
	slog.Debug("subscriber registered",
		slogx.Stringer("pattern", p),
		slog.String("policy", s.policy.String()),
		slog.Int("capacity", s.capacity))
	return s, nil
}

// route fans the envelope out to every matching delivery channel. The
// registry lock is released before any send; with multiple matches the
// sends run in parallel so one full Block-policy channel cannot stall
// its siblings.
func (b *MessageBus) route(ctx context.Context, env Envelope) error {
	channels := b.registry.match(env.Topic)
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0].send(ctx, env)
	}

	errs := make([]error, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch *ring) {
			defer wg.Done()
			errs[i] = ch.send(ctx, env)
		}(i, ch)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown closes every publisher and subscriber. Idempotent; later
// Publisher/Subscribe calls return ErrBusClosed.
func (b *MessageBus) Shutdown() {
	b.shutOnce.Do(func() {
		b.closed.Store(true)
		b.publishers.ForEach(func(_ string, p *Publisher) bool {
			p.Close()
			return true
		})
		b.subscribers.ForEach(func(_ string, s *Subscriber) bool {
			s.Close()
			return true
		})
		slog.Debug("message bus shut down")
	})
}
