// Package errors provides custom error types for the application.
// It defines domain-specific errors with error codes so the orchestrator can
// route each failure class to the right exit policy.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal   ErrorCode = "E1000"
	ErrCodeValidation ErrorCode = "E1001"
	ErrCodeNotFound   ErrorCode = "E1002"

	// VCS errors (2xxx)
	ErrCodeDiffFetch ErrorCode = "E2001"
	ErrCodeVCSAuth   ErrorCode = "E2002"

	// Agent errors (3xxx)
	ErrCodeAgentExecution ErrorCode = "E3001"
	ErrCodeReviewParse    ErrorCode = "E3002"
	ErrCodeAgentTimeout   ErrorCode = "E3003"

	// Posting errors (4xxx)
	ErrCodePosting ErrorCode = "E4001"

	// Persistence errors (5xxx)
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"
	ErrCodeVectorStore  ErrorCode = "E5004"
	ErrCodeEmbedding    ErrorCode = "E5005"

	// Configuration errors (6xxx)
	ErrCodeConfigInvalid   ErrorCode = "E6001"
	ErrCodeConfigMissing   ErrorCode = "E6002"
	ErrCodeConfigTransport ErrorCode = "E6003"
)

// AppError represents an application-level error with code and context
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error class must fail the CI invocation.
// Only configuration, diff-fetch, parse, and timeout errors are fatal;
// persistence and posting failures are warn-and-continue.
func (e *AppError) Fatal() bool {
	switch e.Code {
	case ErrCodeConfigInvalid, ErrCodeConfigMissing, ErrCodeConfigTransport,
		ErrCodeDiffFetch, ErrCodeVCSAuth,
		ErrCodeReviewParse, ErrCodeAgentTimeout, ErrCodeAgentExecution:
		return true
	default:
		return false
	}
}

// ExitCode maps the error to a process exit code.
func (e *AppError) ExitCode() int {
	if e.Fatal() {
		return 1
	}
	return 0
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Common error constructors for convenience

// ErrConfig creates a configuration error
func ErrConfig(message string) *AppError {
	return New(ErrCodeConfigInvalid, message)
}

// ErrTransport creates an invalid-transport configuration error
func ErrTransport(transport string) *AppError {
	return New(ErrCodeConfigTransport,
		fmt.Sprintf("unknown transport: %q (expected 'openai' or 'local')", transport))
}

// ErrDiffFetch wraps a diff-fetch failure
func ErrDiffFetch(message string, err error) *AppError {
	return Wrap(ErrCodeDiffFetch, message, err)
}

// ErrInternal creates an internal error
func ErrInternal(message string, err error) *AppError {
	return Wrap(ErrCodeInternal, message, err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError attempts to convert an error to AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
