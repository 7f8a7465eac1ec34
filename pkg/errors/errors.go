package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Common sentinel errors for quick checks
var (
	// ErrClosed is returned when an operation is attempted on a closed mux.
	ErrClosed = errors.New("mux closed")

	// ErrInvalidInput is returned when input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal is returned when an internal error occurs.
	ErrInternal = errors.New("internal error")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *BaseError) Stack() []uintptr {
	return e.stack
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// UnknownSubscriptionError is returned by Unsubscribe when the subscription id
// was never issued or has already been removed. Ids are never recycled, so a
// double unsubscribe reliably produces this error instead of touching an
// unrelated subscription.
type UnknownSubscriptionError struct {
	*BaseError
	ID uint64
}

// NewUnknownSubscriptionError creates a new unknown subscription error.
func NewUnknownSubscriptionError(id uint64) *UnknownSubscriptionError {
	return &UnknownSubscriptionError{
		BaseError: &BaseError{
			code:    CodeUnknownSubscription,
			message: fmt.Sprintf("unknown subscription id %d", id),
			stack:   captureStack(1),
		},
		ID: id,
	}
}

// TransportSubscribeError wraps a transport failure during a physical
// subscribe. The registry rolls its topic state back before returning it.
type TransportSubscribeError struct {
	*BaseError
	Topic string
}

// NewTransportSubscribeError creates a new transport subscribe error.
func NewTransportSubscribeError(topic string, cause error) *TransportSubscribeError {
	return &TransportSubscribeError{
		BaseError: &BaseError{
			code:    CodeTransportSubscribe,
			message: fmt.Sprintf("transport subscribe failed for topic '%s'", topic),
			cause:   cause,
			stack:   captureStack(1),
		},
		Topic: topic,
	}
}

// TransportUnsubscribeError wraps a transport failure during a physical
// unsubscribe. Registry bookkeeping has already completed when it occurs.
type TransportUnsubscribeError struct {
	*BaseError
	Topic string
}

// NewTransportUnsubscribeError creates a new transport unsubscribe error.
func NewTransportUnsubscribeError(topic string, cause error) *TransportUnsubscribeError {
	return &TransportUnsubscribeError{
		BaseError: &BaseError{
			code:    CodeTransportUnsubscribe,
			message: fmt.Sprintf("transport unsubscribe failed for topic '%s'", topic),
			cause:   cause,
			stack:   captureStack(1),
		},
		Topic: topic,
	}
}

// TransportPublishError wraps a transport failure during a publish.
type TransportPublishError struct {
	*BaseError
	Topic string
}

// NewTransportPublishError creates a new transport publish error.
func NewTransportPublishError(topic string, cause error) *TransportPublishError {
	return &TransportPublishError{
		BaseError: &BaseError{
			code:    CodeTransportPublish,
			message: fmt.Sprintf("transport publish failed for topic '%s'", topic),
			cause:   cause,
			stack:   captureStack(1),
		},
		Topic: topic,
	}
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
			stack:   captureStack(1),
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// InternalError represents an internal error.
type InternalError struct {
	*BaseError
	Operation string
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *InternalError {
	if message == "" {
		message = "internal error"
	}
	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
	}
}

// WithOperation sets the operation that failed.
func (e *InternalError) WithOperation(op string) *InternalError {
	e.Operation = op
	return e
}

// Wrap wraps an error with additional context while preserving the original.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &BaseError{
		code:    codeOf(err),
		message: message,
		cause:   err,
		stack:   captureStack(1),
	}
}

// codeOf extracts the code from an error, defaulting to CodeUnknown.
func codeOf(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeUnknown
}
