// Package errors provides the structured error type shared by the encode and
// reconstruct paths. Every error carries a category naming the failure scope
// (file, table, object, writer, asset) so callers can decide what to skip.
package errors

import "errors"

// ErrorCategory classifies errors by failure scope.
type ErrorCategory string

const (
	// ErrCategoryParse is a per-file failure building the input document.
	ErrCategoryParse ErrorCategory = "PARSE"
	// ErrCategorySchema is a missing or mistyped column; fatal for the table.
	ErrCategorySchema ErrorCategory = "SCHEMA"
	// ErrCategoryReference is a per-object decode failure.
	ErrCategoryReference ErrorCategory = "REFERENCE"
	// ErrCategorySink is fatal for the active writer.
	ErrCategorySink ErrorCategory = "SINK"

	ErrCategoryAsset    ErrorCategory = "ASSET"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeUnreadableFile = "UNREADABLE_FILE"
	CodeNoHitObjects   = "NO_HIT_OBJECTS"
	CodeNoBeatmapFiles = "NO_BEATMAP_FILES"
	CodeMalformedLine  = "MALFORMED_LINE"

	// Schema codes
	CodeMissingColumn  = "MISSING_COLUMN"
	CodeColumnType     = "COLUMN_TYPE"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeTableRead      = "TABLE_READ"

	// Reference codes
	CodeMissingSliderData = "MISSING_SLIDER_DATA"
	CodeUnknownTag        = "UNKNOWN_TAG"
	CodeBadValue          = "BAD_VALUE"

	// Sink codes
	CodeConversion  = "CONVERSION"
	CodeWriteFailed = "WRITE_FAILED"
	CodeWriterState = "WRITER_STATE"

	// Asset codes
	CodeAssetMissing = "ASSET_MISSING"
	CodeCopyFailed   = "COPY_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeInvalidPath    = "INVALID_PATH"
	CodeLocked         = "LOCKED"
	CodeLedgerIO       = "LEDGER_IO"

	// Catalog codes
	CodeCatalogWrite = "CATALOG_WRITE"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BeatsetError carries a category and a code next to the message. Two
// BeatsetErrors match under errors.Is when category and code agree, so the
// package level sentinels in other packages compare by kind.
type BeatsetError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

func (e *BeatsetError) Error() string {
	msg := "[" + string(e.Category) + ":" + e.Code + "] " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BeatsetError) Unwrap() error { return e.Cause }

func (e *BeatsetError) Is(target error) bool {
	t, ok := target.(*BeatsetError)
	return ok && e.Category == t.Category && e.Code == t.Code
}

// New returns an error without a cause.
func New(category ErrorCategory, code, message string) *BeatsetError {
	return &BeatsetError{Category: category, Code: code, Message: message}
}

// Wrap returns an error around cause. A nil cause is allowed.
func Wrap(category ErrorCategory, code, message string, cause error) *BeatsetError {
	return &BeatsetError{Category: category, Code: code, Message: message, Cause: cause}
}

func find(err error) *BeatsetError {
	var be *BeatsetError
	if errors.As(err, &be) {
		return be
	}
	return nil
}

// GetCategory returns the category of the first BeatsetError in the chain,
// or "" when there is none.
func GetCategory(err error) ErrorCategory {
	if be := find(err); be != nil {
		return be.Category
	}
	return ""
}

// GetCode is GetCategory for the code.
func GetCode(err error) string {
	if be := find(err); be != nil {
		return be.Code
	}
	return ""
}

func IsCategory(err error, category ErrorCategory) bool {
	return GetCategory(err) == category
}

func NewParseError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryParse, code, message, cause)
}

func NewSchemaError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategorySchema, code, message, cause)
}

func NewReferenceError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryReference, code, message, cause)
}

func NewSinkError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategorySink, code, message, cause)
}

func NewAssetError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryAsset, code, message, cause)
}

func NewStorageError(code, message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryCatalog, CodeCatalogWrite, message, cause)
}

func NewConfigError(message string) *BeatsetError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *BeatsetError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
