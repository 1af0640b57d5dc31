// Package uuidx generates the time-ordered identifiers used for
// publishers, subscribers and tasks.
package uuidx

import "github.com/google/uuid"

// New returns a fresh UUIDv7. Version 7 is time-ordered, which keeps
// identifiers sortable by creation time in logs and stats dumps.
// Panics only if the system entropy source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh UUIDv7 in its canonical string form.
func NewString() string {
	return New().String()
}
