// Package errors provides structured error handling with stable error codes.
//
// Error codes are organized into categories:
//   - Validation errors: malformed requests and illegal state transitions
//   - Risk errors: limit breaches and kill-switch blocks
//   - Broker errors: upstream call failures, timeouts, and rejections
//   - Lifecycle errors: unknown orders/positions, duplicates
//   - Internal errors: recovered faults surfaced as EXECUTION_EXCEPTION
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidOrder, "units must be non-zero")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeOrderNotFound, "order %s not found", id)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeBrokerError, "close position failed", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeKillSwitchActive) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// BrokerError represents a failed broker call with enough detail to decide
// whether the operation may be retried. Placements are never retried on a
// BrokerError regardless of Transient; only idempotent reads are.
type BrokerError struct {
	StatusCode int    // HTTP status returned by the broker, 0 for transport errors
	BrokerCode string // Broker-assigned reject code, if any
	Transient  bool   // True for timeouts, connection failures, 5xx, and 429
	Message    string // Human-readable message
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(statusCode int, brokerCode string, transient bool, message string) *BrokerError {
	return &BrokerError{
		StatusCode: statusCode,
		BrokerCode: brokerCode,
		Transient:  transient,
		Message:    message,
	}
}

// NewBrokerErrorf creates a new BrokerError with a formatted message.
func NewBrokerErrorf(statusCode int, brokerCode string, transient bool, format string, args ...any) *BrokerError {
	return &BrokerError{
		StatusCode: statusCode,
		BrokerCode: brokerCode,
		Transient:  transient,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *BrokerError) Error() string {
	return e.Message
}

// IsTransient checks if an error chain contains a BrokerError marked
// transient. It uses errors.As to check the error chain.
func IsTransient(err error) bool {
	var brokerErr *BrokerError
	if errors.As(err, &brokerErr) {
		return brokerErr.Transient
	}

	return false
}
