package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSitdownError_Error(t *testing.T) {
	err := New(ErrCategoryInvariant, CodeJoinMismatch, "row counts differ")
	expected := "[INVARIANT:JOIN_MISMATCH] row counts differ"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSitdownError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	expected := "[STORAGE:UPLOAD_FAILED] upload failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSitdownError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryIDMap, CodeSnapshotCorrupt, "bad snapshot", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSitdownError_Is(t *testing.T) {
	err1 := NewMissingColumnError("pageview_df", "url")
	err2 := New(ErrCategorySchema, CodeMissingColumn, "other message")
	err3 := New(ErrCategorySchema, CodeInvalidValue, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryStorage, CodeWriteFailed, false},
		{ErrCategoryStorage, CodeReadFailed, false},
		{ErrCategoryStorage, CodeCatalogFailed, false},
		{ErrCategorySchema, CodeMissingColumn, false},
		{ErrCategoryInvariant, CodeJoinMismatch, false},
		{ErrCategoryIDMap, CodeUnknownHash, false},
		{ErrCategoryConfig, CodeInvalidConfig, false},
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
	wrapped := fmt.Errorf("unify: %w", NewMissingColumnError("lead_df", "lead_source"))
	if GetCategory(wrapped) != ErrCategorySchema {
		t.Errorf("got %q, want %q", GetCategory(wrapped), ErrCategorySchema)
	}
	if GetCode(wrapped) != CodeMissingColumn {
		t.Errorf("got %q, want %q", GetCode(wrapped), CodeMissingColumn)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryConfig, CodeInvalidConfig, "bad config")
	detailed := err.WithDetails(map[string]interface{}{"field": "idle_threshold"})

	if detailed.Details["field"] != "idle_threshold" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestMissingColumnError_NamesTableAndColumn(t *testing.T) {
	err := NewMissingColumnError("search_df", "timestamp")
	if !strings.Contains(err.Error(), "search_df") || !strings.Contains(err.Error(), "timestamp") {
		t.Errorf("message should name table and column, got %q", err.Error())
	}
	if err.Details["table"] != "search_df" || err.Details["column"] != "timestamp" {
		t.Errorf("unexpected details %v", err.Details)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewInvalidValueError("user_df", "timestamp", 3, cause)
	if v.Category != ErrCategorySchema || v.Code != CodeInvalidValue || !errors.Is(v, cause) {
		t.Error("NewInvalidValueError mismatch")
	}
	if v.Details["row"] != 3 {
		t.Error("NewInvalidValueError should record the row")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	m := NewIDMapError(CodeUnknownHash, "no such hash", nil)
	if m.Category != ErrCategoryIDMap {
		t.Error("NewIDMapError mismatch")
	}

	inv := NewInvariantError(CodeJoinMismatch, "lost a session")
	if inv.Category != ErrCategoryInvariant || inv.Retryable {
		t.Error("NewInvariantError mismatch")
	}

	c := NewConfigError("workers must be positive")
	if c.Category != ErrCategoryConfig || c.Code != CodeInvalidConfig {
		t.Error("NewConfigError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
