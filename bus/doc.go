// Package bus implements the in-process topic messaging core: an
// explicit MessageBus context object owning a wildcard-aware topic
// registry, per-subscriber bounded delivery channels with selectable
// backpressure, and publisher/subscriber façades with statistics.
//
// Topics are '/'-separated paths; subscription patterns may use '+' to
// match exactly one segment. Delivery is at-most-once: a message
// rejected by a drop policy is counted and never retried. Messages from
// one publisher reach one subscriber in sequence order; no ordering
// holds across publishers.
//
// The registry lock is only ever held for register/unregister/match.
// Channel operations happen outside it, so a slow subscriber cannot
// stall matching or delivery to its siblings.
package bus
