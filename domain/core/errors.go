package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound = errors.New("resource not found")

	// Input errors
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrEmptyInput       = errors.New("empty input")

	// Determinism errors
	ErrNonDeterministic = errors.New("non-deterministic result")
	ErrHashMismatch     = errors.New("hash mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewInvalidParameterError reports a malformed request field.
func NewInvalidParameterError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParameter, field, reason)
}

func NewEmptyInputError(what string) error {
	return fmt.Errorf("%w: no %s supplied", ErrEmptyInput, what)
}

func NewHashMismatchError(expected, actual Hash) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expected, actual)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrNonDeterministic) ||
		errors.Is(err, ErrHashMismatch)
}
