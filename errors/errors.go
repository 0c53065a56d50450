package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Handshake
	ErrEmptyName              = fmt.Errorf("name must not be empty")
	ErrInvalidName            = fmt.Errorf("name must be ascii alphanumeric")
	ErrNameTaken              = fmt.Errorf("name already taken")
	ErrDisconnectedBeforeName = fmt.Errorf("client disconnected before name was given")

	// Transport
	ErrInvalidUTF8  = fmt.Errorf("line is not valid utf-8")
	ErrLineTooLong  = fmt.Errorf("line exceeds maximum length")
	ErrSessionPanic = fmt.Errorf("session panic")

	// Bus
	ErrSubscriptionClosed = fmt.Errorf("subscription closed")
)

// Is is errors.Is from the standard library, re-exported so callers don't need two imports.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsProtocolError reports whether err rejected the handshake, as opposed to a transport failure.
func IsProtocolError(err error) bool {
	return Is(err, ErrEmptyName) || Is(err, ErrInvalidName) || Is(err, ErrNameTaken)
}
