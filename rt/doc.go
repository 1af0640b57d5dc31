// Package rt provides the soft real-time task layer: a priority
// scheduler ordering pending tasks by (priority, deadline, FIFO), an
// executor running them on two fixed worker pools, and per-priority
// latency histograms.
//
// The executor's workers pull work strictly through the scheduler's
// PopReady; there is no side queue. A task whose deadline has passed
// when a worker would dispatch it transitions to DeadlineMissed and is
// reported through the event callback instead of being run late.
// Deadlines are tracked and reported, not hardware-enforced: this is
// soft real-time on a general-purpose scheduler.
package rt
