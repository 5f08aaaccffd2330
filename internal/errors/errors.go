package errors

import (
	"errors"
	"fmt"
)

// ServeError is the structured error type for annserve.
// It carries enough context for transports to pick a status code and for
// the CLI to print an actionable message.
type ServeError struct {
	// Code is the unique error code (e.g., "ERR_201_LOAD_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ServeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ServeError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This lets the sentinels below work with errors.Is().
func (e *ServeError) Is(target error) bool {
	if t, ok := target.(*ServeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ServeError) WithDetail(key, value string) *ServeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ServeError) WithSuggestion(suggestion string) *ServeError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ServeError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ServeError {
	return &ServeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *ServeError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a ServeError from an existing error.
// The error's message becomes the ServeError message.
func Wrap(code string, err error) *ServeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is. They match any ServeError carrying the same code.
var (
	ErrConfigInvalid          = &ServeError{Code: ErrCodeConfigInvalid}
	ErrLinkInvalid            = &ServeError{Code: ErrCodeLinkInvalid}
	ErrLoadFailure            = &ServeError{Code: ErrCodeLoadFailed}
	ErrStalenessCheckFailure  = &ServeError{Code: ErrCodeStalenessCheck}
	ErrStoreUnavailable       = &ServeError{Code: ErrCodeStoreUnavailable}
	ErrMalformedQuery         = &ServeError{Code: ErrCodeMalformedQuery}
	ErrDimensionMismatch      = &ServeError{Code: ErrCodeDimensionMismatch}
	ErrUnknownResource        = &ServeError{Code: ErrCodeUnknownResource}
	ErrOutOfIndexUnresolvable = &ServeError{Code: ErrCodeOutOfIndex}
	ErrNotFound               = &ServeError{Code: ErrCodeVectorNotFound}
	ErrMetricUnsupported      = &ServeError{Code: ErrCodeMetricUnsupported}
	ErrChainDepth             = &ServeError{Code: ErrCodeChainDepth}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ServeError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// LoadError creates an index load failure.
func LoadError(message string, cause error) *ServeError {
	return New(ErrCodeLoadFailed, message, cause).
		WithSuggestion("The previous snapshot keeps serving; check the archive and retry the refresh")
}

// QueryError creates a malformed query error.
func QueryError(message string) *ServeError {
	return New(ErrCodeMalformedQuery, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ServeError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a ServeError with Retryable set.
func IsRetryable(err error) bool {
	var se *ServeError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var se *ServeError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first ServeError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *ServeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from the first ServeError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	var se *ServeError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
