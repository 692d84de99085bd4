package errors

import (
	"fmt"
)

// QueryError is the structured error type for docuquery.
// It provides rich context for error handling, logging, and user presentation.
type QueryError struct {
	// Code is the unique error code (e.g., "ERR_301_UNSUPPORTED_TYPE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Loader, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QueryError.
func (e *QueryError) Is(target error) bool {
	if t, ok := target.(*QueryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QueryError) WithDetail(key, value string) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new QueryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QueryError {
	return &QueryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QueryError from an existing error.
// The error's message becomes the QueryError message.
func Wrap(code string, err error) *QueryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// LoaderError creates a document-loading error. Loader errors are always
// contained to a single document.
func LoaderError(message string, cause error) *QueryError {
	return New(ErrCodeLoadFailed, message, cause)
}

// ProviderUnavailable creates an error for an unreachable embedding or
// generation backend. Fatal for the current call, never silently swallowed.
func ProviderUnavailable(message string, cause error) *QueryError {
	return New(ErrCodeProviderUnavailable, message, cause)
}

// CacheBackendError creates a soft-fail cache error: caching is disabled
// for the call, the query proceeds uncached.
func CacheBackendError(message string, cause error) *QueryError {
	return New(ErrCodeCacheBackend, message, cause)
}

// IndexMutationError creates an error for a partially failed index deletion.
func IndexMutationError(message string, cause error) *QueryError {
	return New(ErrCodeIndexMutation, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a QueryError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QueryError); ok {
		return qe.Retryable
	}
	return false
}

// GetCode extracts the error code from a QueryError.
// Returns empty string if not a QueryError.
func GetCode(err error) string {
	if qe, ok := err.(*QueryError); ok {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QueryError.
// Returns empty string if not a QueryError.
func GetCategory(err error) Category {
	if qe, ok := err.(*QueryError); ok {
		return qe.Category
	}
	return ""
}
