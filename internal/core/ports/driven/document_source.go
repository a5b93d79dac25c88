package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DocumentSource yields documents for ingestion.
type DocumentSource interface {
	// Load reads all documents from the source
	Load(ctx context.Context) ([]*domain.SourceDocument, error)
}
