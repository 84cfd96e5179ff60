package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeStaleBinding ErrorType = "STALE_BINDING"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeConnectivity ErrorType = "CONNECTIVITY"
	ErrorTypeInternal     ErrorType = "INTERNAL"
)

// OGMError is the custom error type for the mapping library.
// Type drives both caller branching (retry vs rebind vs surface) and
// the session state transition on failure.
type OGMError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *OGMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *OGMError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &OGMError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &OGMError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewStaleBinding creates a stale binding error: the write was addressed to
// a store node that cannot accept transactions in its current cluster role.
func NewStaleBinding(message string, err error) error {
	return &OGMError{
		Type:    ErrorTypeStaleBinding,
		Message: message,
		Err:     err,
	}
}

// NewConflict creates a conflict error for writes the store rejected
// (constraint violation, malformed delta).
func NewConflict(message string, err error) error {
	return &OGMError{
		Type:    ErrorTypeConflict,
		Message: message,
		Err:     err,
	}
}

// NewConnectivity creates a connectivity error for transport failures.
func NewConnectivity(message string, err error) error {
	return &OGMError{
		Type:    ErrorTypeConnectivity,
		Message: message,
		Err:     err,
	}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &OGMError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an OGMError, preserve the type
	var ogmErr *OGMError
	if errors.As(err, &ogmErr) {
		return &OGMError{
			Type:    ogmErr.Type,
			Message: fmt.Sprintf("%s: %s", message, ogmErr.Message),
			Err:     ogmErr.Err,
		}
	}

	// Otherwise, create an internal error
	return &OGMError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var ogmErr *OGMError
	if errors.As(err, &ogmErr) {
		return ogmErr.Type
	}
	return ErrorTypeInternal
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsStaleBinding checks if an error is a stale binding error
func IsStaleBinding(err error) bool {
	return isType(err, ErrorTypeStaleBinding)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsConnectivity checks if an error is a connectivity error
func IsConnectivity(err error) bool {
	return isType(err, ErrorTypeConnectivity)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrorTypeInternal)
}

func isType(err error, t ErrorType) bool {
	var ogmErr *OGMError
	return errors.As(err, &ogmErr) && ogmErr.Type == t
}
