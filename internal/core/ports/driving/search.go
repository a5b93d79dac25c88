package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchService answers semantic queries against a collection
type SearchService interface {
	// Search returns up to limit results, best first.
	// limit <= 0 fails with domain.ErrValidation before any external call.
	Search(ctx context.Context, query string, limit int) ([]domain.QueryResult, error)

	// VerifyCollection probes the collection. It reports problems in the result and never fails.
	VerifyCollection(ctx context.Context) domain.CollectionHealth

	// Collection returns the collection being searched
	Collection() string
}
