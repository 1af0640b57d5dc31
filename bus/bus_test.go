package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentic-robotics/ros3/codec"
	"github.com/agentic-robotics/ros3/msg"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWildcardDelivery(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	sub, err := b.Subscribe("/robots/+/status", WithCapacity(8))
	require.NoError(t, err)

	matching, err := b.Publisher("/robots/7/status")
	require.NoError(t, err)
	deeper, err := b.Publisher("/robots/7/status/extra")
	require.NoError(t, err)

	state := msg.RobotState{Timestamp: 1}
	require.NoError(t, matching.Publish(context.Background(), &state))
	require.NoError(t, deeper.Publish(context.Background(), &state))

	env, err := sub.RecvTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, Topic("/robots/7/status"), env.Topic)

	// The deeper topic has a different segment count and must not match.
	_, ok := sub.TryRecv()
	assert.False(t, ok)
}

func TestSequenceOrdering(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	sub, err := b.Subscribe("/seq/test", WithCapacity(256))
	require.NoError(t, err)
	pub, err := b.Publisher("/seq/test")
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, pub.Publish(context.Background(), &msg.RobotState{Timestamp: int64(i)}))
	}

	// Strictly increasing, starting at 1, no gaps.
	for i := 1; i <= n; i++ {
		env, err := sub.RecvTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), env.Sequence)
	}
}

func TestPublishDecode(t *testing.T) {
	for _, format := range []codec.Format{codec.FormatCDR, codec.FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			b, err := New(WithDefaultFormat(format))
			require.NoError(t, err)
			defer b.Shutdown()

			sub, err := b.Subscribe("/decode/test")
			require.NoError(t, err)
			pub, err := b.Publisher("/decode/test")
			require.NoError(t, err)

			in := msg.RobotState{
				Position:  [3]float64{1, 2, 3},
				Velocity:  [3]float64{-0.5, 0, 0.5},
				Timestamp: 777,
			}
			require.NoError(t, pub.Publish(context.Background(), &in))

			env, err := sub.RecvTimeout(time.Second)
			require.NoError(t, err)
			assert.Equal(t, format, env.Format)

			out, err := Decode[msg.RobotState](sub, env)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestPublisherClose(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	pub, err := b.Publisher("/close/test")
	require.NoError(t, err)

	pub.Close()
	pub.Close()

	err = pub.Publish(context.Background(), &msg.RobotState{})
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestPublishNoSubscribers(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	pub, err := b.Publisher("/nobody/listening")
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), &msg.RobotState{}))

	stats := pub.Stats()
	assert.Equal(t, uint64(1), stats.Messages)
	assert.NotZero(t, stats.Bytes)
}

func TestFanOutIndependence(t *testing.T) {
	// A full Block-policy channel with a zero timeout must not stop
	// delivery to a healthy sibling on the same topic.
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	stuck, err := b.Subscribe("/fan/out",
		WithCapacity(1), WithPolicy(PolicyBlock), WithSendTimeout(0))
	require.NoError(t, err)
	healthy, err := b.Subscribe("/fan/out", WithCapacity(8))
	require.NoError(t, err)

	pub, err := b.Publisher("/fan/out")
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), &msg.RobotState{Timestamp: 1}))
	err = pub.Publish(context.Background(), &msg.RobotState{Timestamp: 2})
	assert.ErrorIs(t, err, ErrSendTimeout)

	// Both messages reached the healthy subscriber regardless.
	for i := 1; i <= 2; i++ {
		env, err := healthy.RecvTimeout(time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), env.Sequence)
	}
	assert.Equal(t, 1, stuck.QueueLen())
}

func TestSubscriberStats(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	sub, err := b.Subscribe("/stats/test",
		WithCapacity(2), WithPolicy(PolicyDropNewest))
	require.NoError(t, err)
	pub, err := b.Publisher("/stats/test")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish(context.Background(), &msg.RobotState{}))
	}

	stats := sub.Stats()
	assert.Equal(t, uint64(2), stats.Messages)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.NotZero(t, stats.Bytes)
}

func TestSubscriberCloseWakesReader(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	sub, err := b.Subscribe("/wake/test")
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := sub.Recv(context.Background())
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Close()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSubscriberClosed)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}

	// After unsubscribe the pattern no longer receives anything.
	pub, err := b.Publisher("/wake/test")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), &msg.RobotState{}))
	assert.Equal(t, uint64(1), pub.Stats().Messages)
}

func TestConcurrentPublishers(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	const publishers, perPublisher = 4, 50
	sub, err := b.Subscribe("/load/+", WithCapacity(publishers*perPublisher))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		pub, err := b.Publisher(fmt.Sprintf("/load/%d", i))
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_ = pub.Publish(context.Background(), &msg.RobotState{Timestamp: int64(j)})
			}
		}()
	}
	wg.Wait()

	// Per-publisher order is preserved even under interleaving.
	lastSeq := map[Topic]uint64{}
	for i := 0; i < publishers*perPublisher; i++ {
		env, err := sub.RecvTimeout(time.Second)
		require.NoError(t, err)
		assert.Greater(t, env.Sequence, lastSeq[env.Topic])
		lastSeq[env.Topic] = env.Sequence
	}
}

func TestBusShutdown(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	sub, err := b.Subscribe("/shutdown/test")
	require.NoError(t, err)
	pub, err := b.Publisher("/shutdown/test")
	require.NoError(t, err)

	b.Shutdown()
	b.Shutdown()

	assert.ErrorIs(t, pub.Publish(context.Background(), &msg.RobotState{}), ErrPublisherClosed)
	_, err = sub.Recv(context.Background())
	assert.ErrorIs(t, err, ErrSubscriberClosed)

	_, err = b.Publisher("/shutdown/after")
	assert.ErrorIs(t, err, ErrBusClosed)
	_, err = b.Subscribe("/shutdown/after")
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestInvalidInputs(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Shutdown()

	_, err = b.Publisher("/robots/+/status")
	assert.ErrorIs(t, err, ErrTopicInvalid)

	_, err = b.Subscribe("/bad//pattern")
	assert.ErrorIs(t, err, ErrTopicInvalid)

	_, err = b.Subscribe("/ok/pattern", WithCapacity(0))
	assert.Error(t, err)
}
