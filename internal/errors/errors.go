// Package errors provides structured error types for interntrack.
// All errors include a category, code, message, and retryable flag so the
// HTTP and CLI layers can tell "reconnect" from "no backup" from "try again".
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the part of the system that raised them.
type ErrorCategory string

const (
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryAuth       ErrorCategory = "AUTH"
	ErrCategoryRemote     ErrorCategory = "REMOTE"
	ErrCategorySnapshot   ErrorCategory = "SNAPSHOT"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeInvalidConfig = "INVALID_CONFIG"

	// Auth codes
	CodeNotConnected   = "NOT_CONNECTED"
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeInvalidState   = "INVALID_STATE"

	// Remote codes
	CodeNoBackup        = "NO_BACKUP"
	CodeTransportFailed = "TRANSPORT_FAILED"
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"

	// Snapshot codes
	CodeDecodeFailed = "DECODE_FAILED"
	CodeEncodeFailed = "ENCODE_FAILED"
	CodeTxFailed     = "TX_FAILED"

	// Store codes
	CodeUnknownTable = "UNKNOWN_TABLE"
	CodeQueryFailed  = "QUERY_FAILED"

	// Validation codes
	CodeInvalidRequest = "INVALID_REQUEST"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// AppError is the structured error type used throughout the system.
type AppError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new AppError.
func New(category ErrorCategory, code, message string) *AppError {
	return &AppError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *AppError {
	return &AppError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Sentinels for errors.Is matching. Only category and code are compared.
var (
	ErrNotConfigured   = New(ErrCategoryConfig, CodeNotConfigured, "remote backup is not configured")
	ErrNotConnected    = New(ErrCategoryAuth, CodeNotConnected, "not connected to remote backup")
	ErrSessionExpired  = New(ErrCategoryAuth, CodeSessionExpired, "session expired, please reconnect")
	ErrNoBackup        = New(ErrCategoryRemote, CodeNoBackup, "no backup found")
	ErrTransport       = New(ErrCategoryRemote, CodeTransportFailed, "sync failed")
	ErrCorruptSnapshot = New(ErrCategoryRemote, CodeCorruptSnapshot, "backup content is corrupt")
	ErrTxFailed        = New(ErrCategorySnapshot, CodeTxFailed, "import transaction failed")
	ErrUnknownTable    = New(ErrCategoryStore, CodeUnknownTable, "unknown table")
	ErrInvalidRequest  = New(ErrCategoryValidation, CodeInvalidRequest, "invalid request")
)

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsAuth reports whether err is an authentication-class failure.
func IsAuth(err error) bool {
	return GetCategory(err) == ErrCategoryAuth
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an AppError.
func GetCategory(err error) ErrorCategory {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an AppError.
func GetCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// isRetryable marks the failures a user can reasonably retry by hand.
// Nothing in the engine retries automatically.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryRemote && code == CodeTransportFailed:
		return true
	case category == ErrCategorySnapshot && code == CodeTxFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewConfigError(code, message string) *AppError {
	return New(ErrCategoryConfig, code, message)
}

func NewAuthError(code, message string, cause error) *AppError {
	return Wrap(ErrCategoryAuth, code, message, cause)
}

func NewRemoteError(code, message string, cause error) *AppError {
	return Wrap(ErrCategoryRemote, code, message, cause)
}

func NewSnapshotError(code, message string, cause error) *AppError {
	return Wrap(ErrCategorySnapshot, code, message, cause)
}

func NewStoreError(code, message string, cause error) *AppError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewValidationError(code, message string) *AppError {
	return New(ErrCategoryValidation, code, message)
}

func NewInternalError(message string, cause error) *AppError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
