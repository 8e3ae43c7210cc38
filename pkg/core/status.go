package core

import "fmt"

// StepStatus represents the execution status of a script step
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Lookup or command failed
	StatusSkipped                   // Not run because an earlier step failed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name in reports.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *StepStatus) UnmarshalText(text []byte) error {
	for _, st := range []StepStatus{StatusPending, StatusRunning, StatusPassed, StatusFailed, StatusSkipped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone         ErrorCategory = iota // No error
	ErrCategoryConstruction                      // Malformed descriptor or arguments
	ErrCategoryNotFound                          // No element matched within the timeout
	ErrCategoryTransport                         // Network or protocol failure
	ErrCategoryResolution                        // A scoped element failed to resolve
	ErrCategoryConfig                            // Invalid configuration
	ErrCategoryAssertion                         // A step expectation did not hold
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConstruction:
		return "construction"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryResolution:
		return "resolution"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryAssertion:
		return "assertion"
	default:
		return "unknown"
	}
}
