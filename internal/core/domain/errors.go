package domain

import (
	"context"
	"errors"
)

// Domain errors - used across all layers
var (
	// ErrConfig indicates invalid configuration: chunk sizes, dimension mismatch,
	// a missing collaborator. Never retried.
	ErrConfig = errors.New("configuration error")

	// ErrValidation indicates a malformed document or query parameter
	ErrValidation = errors.New("validation error")

	// ErrEmbedding indicates the embedding gateway failed
	ErrEmbedding = errors.New("embedding error")

	// ErrStore indicates the vector store failed
	ErrStore = errors.New("store error")

	// ErrNotFound indicates the requested collection was not found
	ErrNotFound = errors.New("not found")

	// ErrSearch wraps any failure surfaced by a search
	ErrSearch = errors.New("search error")

	// ErrIngestionInProgress indicates another run holds the ingestion lock
	ErrIngestionInProgress = errors.New("ingestion already in progress")
)

// IsRetryable reports whether an ingestion step that failed with err may be retried.
// Gateway and store failures are transient; per-call timeouts count as gateway failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfig) || errors.Is(err, ErrValidation) {
		return false
	}
	return errors.Is(err, ErrEmbedding) ||
		errors.Is(err, ErrStore) ||
		errors.Is(err, context.DeadlineExceeded)
}
