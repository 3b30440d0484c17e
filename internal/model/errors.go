package model

import (
	"errors"
	"fmt"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrValidation       = errors.New("validation failed")
	ErrPersistence      = errors.New("persistence failed")
	// ErrAuth means calendar credentials are invalid or revoked; the user has to reconnect.
	ErrAuth = errors.New("calendar authorization failed")
	// ErrFetch covers calendar timeouts and transient provider failures.
	ErrFetch = errors.New("calendar fetch failed")
)

// ValidationError is a schema violation found before a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
