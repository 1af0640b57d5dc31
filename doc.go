/*
Package ros3 is an in-process messaging and scheduling core for robot
control software: topic-based publish/subscribe with wildcard matching
and bounded, backpressure-aware delivery, plus a priority scheduler and
soft real-time executor with latency tracking.

The building blocks live in subpackages:

  - codec: pluggable payload serialization (JSON, CDR, zero-copy raw)
  - bus: MessageBus, topic registry, publishers and subscribers
  - rt: priority scheduler, worker pools, deadline and latency tracking
  - msg: built-in robot message types

# Basic usage

	b, err := bus.New(bus.WithDefaultFormat(codec.FormatCDR))
	if err != nil {
		// handle error
	}
	defer b.Shutdown()

	sub, err := b.Subscribe("/robots/+/status",
		bus.WithCapacity(64),
		bus.WithPolicy(bus.PolicyDropOldest),
	)
	if err != nil {
		// handle error
	}

	pub, err := b.Publisher("/robots/7/status")
	if err != nil {
		// handle error
	}

	if err := pub.Publish(ctx, &msg.RobotState{...}); err != nil {
		// handle error
	}

	env, err := sub.Recv(ctx)
	state, err := bus.Decode[msg.RobotState](sub, env)

Everything is local to the process: no network transport, persistence
or cross-host delivery. Delivery is at-most-once and per-publisher
ordered.
*/
package ros3
