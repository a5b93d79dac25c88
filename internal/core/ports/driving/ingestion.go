package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IngestionService indexes documents into a collection
type IngestionService interface {
	// Ingest chunks, embeds and stores docs. Per-document failures are reported, not returned.
	// A non-nil error means the run itself could not proceed or was cancelled.
	Ingest(ctx context.Context, docs []*domain.SourceDocument) (*domain.IngestionReport, error)

	// EnsureCollection creates the collection if missing. With recreate, it is dropped first.
	EnsureCollection(ctx context.Context, recreate bool) (*domain.CollectionInfo, error)
}
