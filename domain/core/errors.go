package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Validation errors
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientData  = fmt.Errorf("%w: insufficient data for analysis", ErrInvalidInput)
	ErrDimensionMismatch = fmt.Errorf("%w: mismatched dimensions", ErrInvalidInput)
	ErrDegreesOfFreedom  = fmt.Errorf("%w: degrees of freedom must be positive", ErrInvalidInput)
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported method", ErrInvalidInput)

	// Lookup errors
	ErrNotFound           = errors.New("resource not found")
	ErrExperimentNotFound = fmt.Errorf("%w: experiment", ErrNotFound)
)

// Error constructors with context
func NewInvalidInputError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

func NewInsufficientDataError(what string, got, want int) error {
	return fmt.Errorf("%w: %s has %d, need at least %d", ErrInsufficientData, what, got, want)
}

func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// Error checking helpers
func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
