package bus

import "errors"

var (
	// ErrTopicInvalid reports a malformed topic or pattern string.
	ErrTopicInvalid = errors.New("bus: invalid topic")

	// ErrPublisherClosed is returned by Publish after Close. Closing a
	// publisher is terminal.
	ErrPublisherClosed = errors.New("bus: publisher closed")

	// ErrSubscriberClosed is returned from Recv/TryRecv once the
	// subscriber is closed, and from sends into its channel.
	ErrSubscriberClosed = errors.New("bus: subscriber closed")

	// ErrSendTimeout is returned under the Block policy when the
	// channel stays full past the configured timeout.
	ErrSendTimeout = errors.New("bus: send timed out")

	// ErrRecvTimeout is returned when a receive deadline expires before
	// a message arrives.
	ErrRecvTimeout = errors.New("bus: recv timed out")

	// ErrBusClosed is returned for operations on a bus after Shutdown.
	ErrBusClosed = errors.New("bus: closed")
)
