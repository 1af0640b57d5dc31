// Package codec provides the pluggable serialization layer for the
// messaging core. A Codec turns typed message values into byte buffers
// and back; the wire format is identified by a single-byte Format tag
// carried in every envelope.
//
// Three formats are built in:
//
//   - JSON: human readable, variable size.
//   - CDR: fixed little-endian binary layout, fields in declaration
//     order, length-prefixed strings and slices, no padding.
//   - Raw: zero-copy pass-through for callers that manage their own
//     byte layout. Unmarshal aliases the input buffer instead of
//     copying it.
//
// Codecs are selected at publisher/subscriber construction time, never
// ad hoc per call.
package codec
