package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotFound is returned when the client directory has no such client.
	ErrClientNotFound = errors.New("client not found")
	// ErrActivityNotFound is returned when a scheduled activity cannot be located.
	ErrActivityNotFound = errors.New("scheduled activity not found")
	// ErrCadenceNotFound is returned when a client has no check-in cadence.
	ErrCadenceNotFound = errors.New("check-in cadence not found")
	// ErrCadenceExists is returned when creating a cadence for a client that already has one.
	ErrCadenceExists = errors.New("check-in cadence already exists")
	// ErrStorageUnavailable wraps transient storage failures. Callers own
	// retry policy; the service never retries internally.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError describes input rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
