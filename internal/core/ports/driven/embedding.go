package driven

import (
	"context"
)

// EmbeddingService turns text into fixed-dimension vectors.
// Implementations wrap transient failures with domain.ErrEmbedding.
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// MaxInputChars is the largest input the model accepts without truncation.
	// Zero means the gateway does not report a limit.
	MaxInputChars() int

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}

// EmbeddingCache stores vectors keyed by model and input text.
type EmbeddingCache interface {
	// Get returns the cached vector and whether it was present
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set stores a vector
	Set(ctx context.Context, key string, vector []float32) error
}
