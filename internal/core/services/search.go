package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure retriever implements SearchService
var _ driving.SearchService = (*retriever)(nil)

// retriever answers queries by embedding them and ranking stored chunks.
type retriever struct {
	store        driven.VectorStore
	embedder     driven.EmbeddingService
	collection   string
	maxLimit     int
	queryTimeout time.Duration
	logger       *slog.Logger
}

// RetrieverConfig holds dependencies for the retriever.
// Embedder must be the same model the collection was ingested with.
type RetrieverConfig struct {
	Store        driven.VectorStore
	Embedder     driven.EmbeddingService
	Collection   string
	MaxLimit     int           // caps limit, zero for no cap
	QueryTimeout time.Duration // zero for none
	Logger       *slog.Logger
}

// NewRetriever creates a new SearchService
func NewRetriever(cfg RetrieverConfig) (driving.SearchService, error) {
	if cfg.Store == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("%w: retriever requires a store and an embedder", domain.ErrConfig)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &retriever{
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		collection:   cfg.Collection,
		maxLimit:     cfg.MaxLimit,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}, nil
}

// Collection returns the searched collection
func (r *retriever) Collection() string {
	return r.collection
}

// Search embeds query and returns up to limit matches, best first.
// An empty result means nothing matched; failures are always returned as errors.
func (r *retriever) Search(ctx context.Context, query string, limit int) ([]domain.QueryResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrValidation, limit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	if r.maxLimit > 0 && limit > r.maxLimit {
		limit = r.maxLimit
	}

	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}

	start := time.Now()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrSearch, err)
	}

	matches, err := r.store.Query(ctx, r.collection, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrSearch, r.collection, err)
	}

	results := make([]domain.QueryResult, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		results = append(results, domain.NewQueryResult(m))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	r.logger.Debug("search complete",
		"collection", r.collection,
		"limit", limit,
		"results", len(results),
		"took", time.Since(start),
	)
	return results, nil
}

// VerifyCollection reports whether the collection is reachable and how it is configured.
func (r *retriever) VerifyCollection(ctx context.Context) domain.CollectionHealth {
	health := domain.CollectionHealth{Name: r.collection}

	info, err := r.store.GetCollectionInfo(ctx, r.collection)
	if err == nil && info == nil {
		err = fmt.Errorf("%w: collection %s returned no info", domain.ErrStore, r.collection)
	}
	if err != nil {
		r.logger.Warn("collection check failed", "collection", r.collection, "error", err)
		health.Error = err.Error()
		return health
	}

	health.Exists = true
	health.PointCount = info.PointCount
	health.VectorSize = info.VectorSize
	health.Distance = info.Distance
	return health
}
