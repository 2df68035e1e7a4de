// Package errors provides structured error types for sitdown.
// Every error carries a category and a code so callers can tell schema
// problems in the input apart from invariant violations in the engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategorySchema    ErrorCategory = "SCHEMA"
	ErrCategoryInvariant ErrorCategory = "INVARIANT"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryIDMap     ErrorCategory = "IDMAP"
	ErrCategoryConfig    ErrorCategory = "CONFIG"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeMissingColumn = "MISSING_COLUMN"
	CodeInvalidValue  = "INVALID_VALUE"

	// Invariant codes
	CodeJoinMismatch = "JOIN_MISMATCH"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeTableNotFound  = "TABLE_NOT_FOUND"
	CodeRunNotFound    = "RUN_NOT_FOUND"
	CodeReadFailed     = "READ_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeCatalogFailed  = "CATALOG_FAILED"

	// Id map codes
	CodeUnknownHash      = "UNKNOWN_HASH"
	CodeInvalidSessionID = "INVALID_SESSION_ID"
	CodeSnapshotCorrupt  = "SNAPSHOT_CORRUPT"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SitdownError is the structured error type used throughout the system.
type SitdownError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SitdownError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SitdownError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SitdownError) Is(target error) bool {
	var t *SitdownError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SitdownError.
func New(category ErrorCategory, code, message string) *SitdownError {
	return &SitdownError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new SitdownError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SitdownError {
	return &SitdownError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SitdownError) WithDetails(details map[string]interface{}) *SitdownError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SitdownError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SitdownError.
func GetCategory(err error) ErrorCategory {
	var se *SitdownError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SitdownError.
func GetCode(err error) string {
	var se *SitdownError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isRetryable reports whether a failure may succeed on a second attempt.
// Analysis is deterministic, so only object transfers qualify.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

// NewMissingColumnError reports a required column absent from a table.
func NewMissingColumnError(table, column string) *SitdownError {
	return New(ErrCategorySchema, CodeMissingColumn,
		fmt.Sprintf("table %q is missing required column %q", table, column)).
		WithDetails(map[string]interface{}{"table": table, "column": column})
}

// NewInvalidValueError reports a value that cannot be decoded.
func NewInvalidValueError(table, column string, row int, cause error) *SitdownError {
	return Wrap(ErrCategorySchema, CodeInvalidValue,
		fmt.Sprintf("table %q row %d has an invalid %q value", table, row, column), cause).
		WithDetails(map[string]interface{}{"table": table, "column": column, "row": row})
}

func NewInvariantError(code, message string) *SitdownError {
	return New(ErrCategoryInvariant, code, message)
}

func NewStorageError(code, message string, cause error) *SitdownError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewIDMapError(code, message string, cause error) *SitdownError {
	return Wrap(ErrCategoryIDMap, code, message, cause)
}

func NewConfigError(message string) *SitdownError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *SitdownError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
