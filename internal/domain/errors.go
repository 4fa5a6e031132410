package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound signals a missing portfolio record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnknownKind signals an unsupported record kind.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrInvalidQuery signals a rejected search request (empty query, bad threshold or limit).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidRequest signals a malformed chat request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmptyInput signals an attempt to embed empty or whitespace-only text.
	ErrEmptyInput = errors.New("empty embedding input")
	// ErrVectorDimMismatch signals a vector whose length differs from the index dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrSearchUnavailable signals an unreachable vector backend or an index that was never built.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrPersistence signals a failed write-back of derived embedding fields.
	ErrPersistence = errors.New("persistence failure")
	// ErrChatProvider signals a language-model completion failure.
	ErrChatProvider = errors.New("chat provider error")
)

// EmbeddingFailure is returned when a text could not be turned into a vector.
// RecordID is empty for free-text queries.
type EmbeddingFailure struct {
	RecordID string
	Err      error
}

func (e *EmbeddingFailure) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("embedding failed for %s: %v", e.RecordID, e.Err)
	}
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

// Unwrap exposes both the provider sentinel and the underlying cause.
func (e *EmbeddingFailure) Unwrap() []error { return []error{ErrEmbeddingProviderError, e.Err} }

// NewEmbeddingFailure wraps err, keeping an existing RecordID when err is already a failure.
func NewEmbeddingFailure(recordID string, err error) error {
	var ef *EmbeddingFailure
	if errors.As(err, &ef) {
		if ef.RecordID == "" && recordID != "" {
			return &EmbeddingFailure{RecordID: recordID, Err: ef.Err}
		}
		return err
	}
	return &EmbeddingFailure{RecordID: recordID, Err: err}
}

// SearchUnavailable is returned when the collection behind a scope cannot be queried.
type SearchUnavailable struct {
	Collection string
	Err        error
}

func (e *SearchUnavailable) Error() string {
	return fmt.Sprintf("search unavailable for %s: %v", e.Collection, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *SearchUnavailable) Unwrap() []error { return []error{ErrSearchUnavailable, e.Err} }

// PersistenceFailure is returned when embedding fields could not be written back.
type PersistenceFailure struct {
	RecordID string
	Err      error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persist %s: %v", e.RecordID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceFailure) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// ChatFailure is returned when the language model produced no reply.
type ChatFailure struct {
	Model string
	Err   error
}

func (e *ChatFailure) Error() string {
	return fmt.Sprintf("chat completion (%s): %v", e.Model, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ChatFailure) Unwrap() []error { return []error{ErrChatProvider, e.Err} }
