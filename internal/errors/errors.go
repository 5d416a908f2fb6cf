// Package errors provides structured error types for the sortbench loader.
// Every error carries a category, a code, a message and optional details so that
// schema and load failures can be diagnosed without re-running with verbose logs.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors by the stage of a run that produced them.
type ErrorCategory string

const (
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategorySchema        ErrorCategory = "SCHEMA"
	ErrCategoryLoad          ErrorCategory = "LOAD"
	ErrCategoryIO            ErrorCategory = "IO"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Configuration codes
	CodeHelpRequested      = "HELP_REQUESTED"
	CodeUnknownOption      = "UNKNOWN_OPTION"
	CodeInvalidValue       = "INVALID_VALUE"
	CodeInvalidScaleFactor = "INVALID_SCALE_FACTOR"
	CodeInvalidConfig      = "INVALID_CONFIG"

	// Schema codes
	CodeDatabaseDropFailed   = "DATABASE_DROP_FAILED"
	CodeDatabaseCreateFailed = "DATABASE_CREATE_FAILED"
	CodeTableCreateFailed    = "TABLE_CREATE_FAILED"
	CodeTableNotFound        = "TABLE_NOT_FOUND"

	// Load codes
	CodeBatchBeginFailed  = "BATCH_BEGIN_FAILED"
	CodeBatchInsertFailed = "BATCH_INSERT_FAILED"
	CodeBatchCommitFailed = "BATCH_COMMIT_FAILED"
	CodeLoadCanceled      = "LOAD_CANCELED"

	// IO codes
	CodeSummaryOpenFailed  = "SUMMARY_OPEN_FAILED"
	CodeSummaryWriteFailed = "SUMMARY_WRITE_FAILED"
	CodeSummaryParseFailed = "SUMMARY_PARSE_FAILED"
	CodeArchiveFailed      = "ARCHIVE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SortbenchError is the structured error type used throughout the loader.
type SortbenchError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string. Details are rendered in key order.
func (e *SortbenchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Details[k])
		}
		sb.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SortbenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SortbenchError) Is(target error) bool {
	var t *SortbenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SortbenchError.
func New(category ErrorCategory, code, message string) *SortbenchError {
	return &SortbenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new SortbenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SortbenchError {
	return &SortbenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *SortbenchError) WithDetails(details map[string]interface{}) *SortbenchError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SortbenchError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SortbenchError.
func GetCategory(err error) ErrorCategory {
	var se *SortbenchError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SortbenchError.
func GetCode(err error) string {
	var se *SortbenchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetDetails extracts the details map from an error chain.
func GetDetails(err error) map[string]interface{} {
	var se *SortbenchError
	if errors.As(err, &se) {
		return se.Details
	}
	return nil
}

// IsCategory reports whether err (or its chain) belongs to category.
func IsCategory(err error, category ErrorCategory) bool {
	return GetCategory(err) == category
}

// isRetryable determines if an error code is retryable. A commit that failed
// left no partial batch behind, so the same batch can be submitted again.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryLoad && code == CodeBatchCommitFailed
}

// Convenience constructors for common errors.

func NewConfigurationError(code, message string) *SortbenchError {
	return New(ErrCategoryConfiguration, code, message)
}

func NewSchemaError(code, message string, cause error) *SortbenchError {
	return Wrap(ErrCategorySchema, code, message, cause)
}

// NewLoadError reports a failed batch. The row-id range is half-open: [firstID, endID).
func NewLoadError(code, table string, batch int, firstID, endID int64, cause error) *SortbenchError {
	return Wrap(ErrCategoryLoad, code,
		fmt.Sprintf("batch %d of table %s failed for rows [%d,%d)", batch, table, firstID, endID),
		cause,
	).WithDetails(map[string]interface{}{
		"table":    table,
		"batch":    batch,
		"first_id": firstID,
		"end_id":   endID,
	})
}

func NewIOError(code, message string, cause error) *SortbenchError {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewInternalError(message string, cause error) *SortbenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
