package codec

import "fmt"

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	// KindUnsupportedFormat means the envelope carried a format tag no
	// codec is registered for.
	KindUnsupportedFormat DecodeErrorKind = iota
	// KindTruncated means the buffer ended before the value did.
	KindTruncated
	// KindMalformed means the bytes were structurally invalid for the
	// format.
	KindMalformed
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindUnsupportedFormat:
		return "unsupported format"
	case KindTruncated:
		return "truncated"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("decode error kind(%d)", int(k))
	}
}

// EncodeError is returned when a value cannot be serialized.
type EncodeError struct {
	Format Format
	Reason string
	Cause  error
}

func (e *EncodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("codec: encode %s: %s: %v", e.Format, e.Reason, e.Cause)
	}
	return fmt.Sprintf("codec: encode %s: %s", e.Format, e.Reason)
}

func (e *EncodeError) Unwrap() error { return e.Cause }

// DecodeError is returned when a buffer cannot be deserialized.
type DecodeError struct {
	Format Format
	Kind   DecodeErrorKind
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("codec: decode %s: %s", e.Format, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Cause }
