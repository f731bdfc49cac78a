package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the query and ingestion paths.
var (
	ErrInvalidQuery  = errors.New("invalid query")
	ErrEmptyIndex    = errors.New("index has no entries")
	ErrEmbedding     = errors.New("embedding rejected")
	ErrTransient     = errors.New("transient backend failure")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrStructural    = errors.New("structural index error")
	ErrSuperseded    = errors.New("superseded by a newer request")
	ErrInvalidFiling = errors.New("invalid filing")
)

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// SynthesisError carries the retrieval result alongside the generation
// failure so callers can report "search succeeded, synthesis failed"
// instead of losing all progress.
type SynthesisError struct {
	Retrieved RetrievalResult
	Cause     error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed after retrieving %d chunks: %v", len(e.Retrieved.Hits), e.Cause)
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesis }

// StructuralError describes a corrupted or mismatched persisted index. The
// index instance it refers to must not serve queries.
type StructuralError struct {
	Detail string
}

func (e *StructuralError) Error() string { return "structural: " + e.Detail }

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

// IsTransient classifies an error as retryable. Timeouts and backend
// unavailability retry; malformed input and structural faults do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrStructural) ||
		errors.Is(err, ErrEmptyIndex) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout"),
		strings.Contains(e, "temporarily"),
		strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"),
		strings.Contains(e, "429"):
		return true
	}
	return false
}
