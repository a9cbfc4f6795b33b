package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the backend-agnostic sentinel every store returns for a
// read of an absent id. Services translate it into KindNotFound at their
// boundary.
var ErrNotFound = errors.New("not found")

// ErrorKind is the wire-level error category of a failure.
type ErrorKind string

const (
	KindInvalidInput             ErrorKind = "invalid_input"
	KindNotFound                 ErrorKind = "not_found"
	KindStorage                  ErrorKind = "storage"
	KindBeliefAnalysisIncomplete ErrorKind = "belief_analysis_incomplete"

	// KindExtractionUnavailable and KindEmbeddingUnavailable are never
	// surfaced to callers: the engine substitutes the pattern fallback or
	// proceeds without an embedding. They exist for logs and tests.
	KindExtractionUnavailable ErrorKind = "extraction_unavailable"
	KindEmbeddingUnavailable  ErrorKind = "embedding_unavailable"
)

// Error is the discriminated error value the engine reports: a kind, a
// human-readable message, and a details bag enumerated per kind
// (invalid_input.field, storage.operation, belief_analysis_incomplete.memoryId).
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail adds one entry to the details bag and returns e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error; errors.Is/As see through it.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// KindOf extracts the kind from any error. A bare ErrNotFound maps to
// KindNotFound; anything unrecognized is KindStorage.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindStorage
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// InvalidField builds the canonical invalid_input error for one field.
func InvalidField(field, message string, value any) *Error {
	return NewError(KindInvalidInput, fmt.Sprintf("%s: %s", field, message)).
		WithDetail("field", field).
		WithDetail("value", value)
}

// StorageError wraps a backend failure with the operation that hit it.
func StorageError(operation string, err error) *Error {
	return NewError(KindStorage, fmt.Sprintf("%s failed", operation)).
		WithDetail("operation", operation).
		WithCause(err)
}
