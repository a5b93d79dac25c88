package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorStore holds (id, vector, payload) records in named collections.
// Failures wrap domain.ErrStore; a missing collection wraps domain.ErrNotFound.
type VectorStore interface {
	// CreateCollection creates a collection. Dimensionality and distance are fixed afterwards.
	CreateCollection(ctx context.Context, cfg domain.CollectionConfig) error

	// DeleteCollection drops a collection and all its records.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// GetCollectionInfo returns the collection's configuration and point count.
	GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error)

	// Upsert inserts or overwrites records by id.
	Upsert(ctx context.Context, collection string, records []domain.IndexRecord) error

	// DeleteStaleChunks removes records of documentID whose chunk_index >= fromIndex.
	DeleteStaleChunks(ctx context.Context, collection, documentID string, fromIndex int) error

	// Query returns up to limit nearest neighbors of vector, best first.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredRecord, error)

	// Close releases the store connection
	Close() error
}
