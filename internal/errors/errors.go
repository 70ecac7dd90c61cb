package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// Conflict indicates a duplicate-key store conflict during ingestion.
	// Recoverable: the caller re-queries the conflicting keys.
	Conflict ErrorCode = "CONFLICT"
	// Timeout indicates a traversal or resolution query exceeded its bound
	Timeout ErrorCode = "TIMEOUT"
	// NotFound indicates a repository, file, or symbol doesn't exist
	NotFound ErrorCode = "NOT_FOUND"
	// Validation indicates a malformed parser record was skipped
	Validation ErrorCode = "VALIDATION"
	// IOError indicates an unexpected filesystem failure (permission, disk)
	IOError ErrorCode = "IO_ERROR"
	// Internal indicates an unexpected error
	Internal ErrorCode = "INTERNAL_ERROR"
)

// GraphError represents a codegraph error with a stable code
type GraphError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new GraphError
func New(code ErrorCode, message string, cause error) *GraphError {
	return &GraphError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *GraphError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GraphError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *GraphError) WithDetails(details interface{}) *GraphError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from an error chain, or Internal if none
func CodeOf(err error) ErrorCode {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return Internal
}

func is(err error, code ErrorCode) bool {
	var ge *GraphError
	return errors.As(err, &ge) && ge.Code == code
}

// IsConflict reports whether err is a duplicate-key store conflict
func IsConflict(err error) bool { return is(err, Conflict) }

// IsTimeout reports whether err is a query timeout
func IsTimeout(err error) bool { return is(err, Timeout) }

// IsNotFound reports whether err is a missing-entity error
func IsNotFound(err error) bool { return is(err, NotFound) }
