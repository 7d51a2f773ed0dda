package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestBeatsetError_Error(t *testing.T) {
	err := New(ErrCategorySink, CodeWriteFailed, "write failed")
	expected := "[SINK:WRITE_FAILED] write failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBeatsetError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategorySink, CodeWriteFailed, "write failed", cause)
	expected := "[SINK:WRITE_FAILED] write failed: disk full"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBeatsetError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewSchemaError(CodeMissingColumn, "missing folder_id", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestBeatsetError_Is(t *testing.T) {
	err1 := New(ErrCategoryReference, CodeMissingSliderData, "first")
	err2 := New(ErrCategoryReference, CodeMissingSliderData, "second")
	err3 := New(ErrCategoryReference, CodeUnknownTag, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIs_SentinelThroughWrapping(t *testing.T) {
	sentinel := NewStorageError(CodeObjectNotFound, "object not found", nil)
	err := fmt.Errorf("pull: %w", NewStorageError(CodeObjectNotFound, "object not found: dataset/beatmaps.parquet", nil))
	if !errors.Is(err, sentinel) {
		t.Error("wrapped error should match a sentinel of the same kind")
	}
	if errors.Is(err, NewStorageError(CodeDeleteFailed, "", nil)) {
		t.Error("different code must not match")
	}
	if errors.Is(err, fmt.Errorf("object not found")) {
		t.Error("plain errors never match")
	}
}

func TestGetCategoryThroughWrapping(t *testing.T) {
	inner := NewReferenceError(CodeUnknownTag, "unknown object type", nil)
	outer := fmt.Errorf("file a.osu: %w", inner)

	if got := GetCategory(outer); got != ErrCategoryReference {
		t.Errorf("GetCategory = %q, want %q", got, ErrCategoryReference)
	}
	if got := GetCode(outer); got != CodeUnknownTag {
		t.Errorf("GetCode = %q, want %q", got, CodeUnknownTag)
	}
	if !IsCategory(outer, ErrCategoryReference) {
		t.Error("IsCategory should see through fmt wrapping")
	}
	if GetCategory(fmt.Errorf("plain")) != "" {
		t.Error("plain errors have no category")
	}
}

func TestInternalError(t *testing.T) {
	err := NewInternalError("unexpected row kind", nil)
	if GetCode(err) != CodeUnexpected || !IsCategory(err, ErrCategoryInternal) {
		t.Errorf("got %s", err)
	}
	if GetCode(nil) != "" {
		t.Error("nil has no code")
	}
}
