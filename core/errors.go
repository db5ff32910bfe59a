package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedToolArguments is returned when accumulated tool-call
	// argument text cannot be parsed into an object.
	ErrMalformedToolArguments = errors.New("malformed tool arguments")

	// ErrProtocolViolation is returned when a connector emits an event
	// sequence that breaks the canonical stream invariants.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTurnLimit is returned by TurnLimiter once the configured turn cap
	// is exhausted.
	ErrTurnLimit = errors.New("turn limit reached")
)

// ProtocolError describes which event broke the stream invariants and why.
type ProtocolError struct {
	Event  EventType
	Index  int
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (event=%s index=%d)", ErrProtocolViolation, e.Reason, e.Event, e.Index)
}

// Unwrap allows errors.Is(err, ErrProtocolViolation).
func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }
