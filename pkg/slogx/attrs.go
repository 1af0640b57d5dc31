// Package slogx carries small helpers for building slog attributes in
// a consistent shape across the module.
package slogx

import (
	"fmt"
	"log/slog"
	"time"
)

// Error returns an attribute with key "error" and the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns an attribute holding the value's String() form.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// Topic returns the attribute used for topic paths in log records.
func Topic(topic fmt.Stringer) slog.Attr {
	return slog.String("topic", topic.String())
}

// Duration returns an attribute holding the duration in its compact
// textual form, keeping records readable at sub-millisecond scales.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.String(key, d.String())
}
