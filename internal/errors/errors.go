// Package errors defines the error taxonomy shared by both storage backends
// and the benchmark harness.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound       = errors.New("not found")
	ErrTickerNotFound = errors.New("ticker not found")

	// Validation errors
	ErrInvalidRange    = errors.New("invalid time range")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")

	// Backend errors
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrStoreClosed        = errors.New("store is closed")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTickerNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsBackendUnavailable returns true if err indicates the underlying store
// cannot be opened or queried. The benchmark harness records such cases as
// failed and continues; all other error kinds propagate.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrStoreClosed)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewTickerNotFound creates a ticker not-found error.
func NewTickerNotFound(symbol string) error {
	return fmt.Errorf("ticker '%s': %w", symbol, ErrTickerNotFound)
}

// NewInvalidRange creates an invalid range error with both bounds.
func NewInvalidRange(start, end string) error {
	return fmt.Errorf("end %s before start %s: %w", end, start, ErrInvalidRange)
}

// NewInvalidArgument creates an invalid argument error.
func NewInvalidArgument(name string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", name, value, reason, ErrInvalidArgument)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewBackendUnavailable creates a backend unavailable error.
func NewBackendUnavailable(backend string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", backend, ErrBackendUnavailable)
	}
	return fmt.Errorf("%s: %v: %w", backend, cause, ErrBackendUnavailable)
}
