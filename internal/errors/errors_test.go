package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSortbenchError_Error(t *testing.T) {
	err := New(ErrCategoryConfiguration, CodeInvalidScaleFactor, "invalid scale_factor: 0")
	expected := "[CONFIGURATION:INVALID_SCALE_FACTOR] invalid scale_factor: 0"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSortbenchError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategoryIO, CodeSummaryWriteFailed, "write failed", cause)
	expected := "[IO:SUMMARY_WRITE_FAILED] write failed: disk full"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSortbenchError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategorySchema, CodeTableCreateFailed, "create failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSortbenchError_Is(t *testing.T) {
	err1 := New(ErrCategoryLoad, CodeBatchInsertFailed, "first")
	err2 := New(ErrCategoryLoad, CodeBatchInsertFailed, "second")
	err3 := New(ErrCategoryLoad, CodeBatchCommitFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestNewLoadError(t *testing.T) {
	cause := fmt.Errorf("UNIQUE constraint failed")
	err := NewLoadError(CodeBatchInsertFailed, "LEFT_TABLE", 3, 50, 75, cause)

	want := "[LOAD:BATCH_INSERT_FAILED] batch 3 of table LEFT_TABLE failed for rows [50,75) " +
		"(batch=3, end_id=75, first_id=50, table=LEFT_TABLE): UNIQUE constraint failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("loader: %w", err)
	if !IsCategory(wrapped, ErrCategoryLoad) {
		t.Error("expected LOAD category through wrapping")
	}
	details := GetDetails(wrapped)
	if details["first_id"] != int64(50) || details["end_id"] != int64(75) {
		t.Errorf("unexpected details %v", details)
	}
	if details["table"] != "LEFT_TABLE" {
		t.Errorf("unexpected table detail %v", details["table"])
	}
}

func TestWithDetailsDoesNotMutate(t *testing.T) {
	base := New(ErrCategorySchema, CodeTableNotFound, "missing")
	withTable := base.WithDetails(map[string]interface{}{"table": "RIGHT_TABLE"})
	if base.Details != nil {
		t.Error("WithDetails must not modify the receiver")
	}
	both := withTable.WithDetails(map[string]interface{}{"database": "sortbench"})
	if len(both.Details) != 2 {
		t.Errorf("expected merged details, got %v", both.Details)
	}
	if len(withTable.Details) != 1 {
		t.Errorf("expected original details untouched, got %v", withTable.Details)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryLoad, CodeBatchCommitFailed, true},
		{ErrCategoryLoad, CodeBatchInsertFailed, false},
		{ErrCategoryLoad, CodeBatchBeginFailed, false},
		{ErrCategorySchema, CodeTableCreateFailed, false},
		{ErrCategoryConfiguration, CodeInvalidScaleFactor, false},
		{ErrCategoryIO, CodeSummaryWriteFailed, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewSchemaError(CodeDatabaseCreateFailed, "create db", nil)
	if GetCategory(err) != ErrCategorySchema {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategorySchema)
	}
	if GetCode(err) != CodeDatabaseCreateFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeDatabaseCreateFailed)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-SortbenchError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-SortbenchError should return empty code")
	}
}
