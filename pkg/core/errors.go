package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, transport_error, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context (expression, strategy, timeout)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// Copies made with the With* helpers still match their predefined error.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with fmt.Sprintf formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Construction errors: raised synchronously, never retried.
	ErrInvalidDescriptor = &ExecutionError{
		Category: ErrCategoryConstruction,
		Code:     "invalid_descriptor",
		Message:  "invalid element descriptor",
	}
	ErrInvalidArgument = &ExecutionError{
		Category: ErrCategoryConstruction,
		Code:     "invalid_argument",
		Message:  "invalid command argument",
	}
	ErrUnknownCommand = &ExecutionError{
		Category: ErrCategoryConstruction,
		Code:     "unknown_command",
		Message:  "unknown command",
	}

	// Not found errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryNotFound,
		Code:     "element_not_found",
		Message:  "element not found",
	}

	// Transport errors
	ErrTransport = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "transport_error",
		Message:  "protocol request failed",
	}
	ErrSessionNotCreated = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "session_not_created",
		Message:  "could not create browser session",
	}
	ErrUnsupportedAction = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "unsupported_action",
		Message:  "action not supported by transport",
	}

	// Resolution errors
	ErrResolution = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     "resolution_failed",
		Message:  "element handle could not be resolved",
	}
	ErrQueueClosed = &ExecutionError{
		Category: ErrCategoryResolution,
		Code:     "queue_closed",
		Message:  "command queue is closed",
	}

	// Assertion errors
	ErrAssertionFailed = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_failed",
		Message:  "expectation not met",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	for err != nil {
		if e, ok := err.(*ExecutionError); ok {
			return e.Category
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ErrCategoryNone
		}
		err = u.Unwrap()
	}
	return ErrCategoryNone
}
