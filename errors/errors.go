// Package errors defines the failure taxonomy of the relay core and the
// mapping from internal failures to wire-level error codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication refuses a connection whose credential is bad or
	// expired. There is no retry: the client reconnects with a fresh token.
	ErrAuthentication = fmt.Errorf("authentication failed")

	// ErrNotParticipant rejects a send from a user that is not a persisted
	// participant of the target chat.
	ErrNotParticipant = fmt.Errorf("sender is not a participant of this chat")

	// ErrInvalidMetadata rejects a message whose metadata does not match
	// the shape required by its declared type.
	ErrInvalidMetadata = fmt.Errorf("metadata does not match message type")

	ErrNotFound = fmt.Errorf("not found")

	// ErrStatusRegression refuses a delivery-status transition that would
	// move a message backward in the SENT -> DELIVERED -> READ machine.
	ErrStatusRegression = fmt.Errorf("message status cannot move backward")

	ErrUnknownStatus = fmt.Errorf("unknown message status")

	// ErrInfrastructure marks a transient store failure. The pipeline does
	// not retry; callers resubmit with the same correlation token.
	ErrInfrastructure = fmt.Errorf("storage unavailable")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// Wire-level error codes pushed back to clients.
const (
	CodeAuthFailed  = "AUTH_FAILED"
	CodeForbidden   = "FORBIDDEN"
	CodeInvalid     = "INVALID"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL"
)

// CodeOf converts an internal failure into the code a client sees.
// Anything unrecognized collapses into INTERNAL so that unexpected
// failures never leak implementation detail to the wire.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeAuthFailed
	case errors.Is(err, ErrNotParticipant):
		return CodeForbidden
	case errors.Is(err, ErrInvalidMetadata),
		errors.Is(err, ErrStatusRegression),
		errors.Is(err, ErrUnknownStatus):
		return CodeInvalid
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInfrastructure):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
