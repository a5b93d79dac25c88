package ai

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure RateLimitedEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*RateLimitedEmbedding)(nil)

// RateLimitedEmbedding spaces gateway calls to respect a provider quota.
// One token is taken per Embed or EmbedQuery call.
type RateLimitedEmbedding struct {
	driven.EmbeddingService
	limiter *rate.Limiter
}

// NewRateLimitedEmbedding wraps next with a limiter of rps calls per second.
func NewRateLimitedEmbedding(next driven.EmbeddingService, rps float64, burst int) *RateLimitedEmbedding {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedding{
		EmbeddingService: next,
		limiter:          rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.EmbeddingService.Embed(ctx, texts)
}

func (r *RateLimitedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.EmbeddingService.EmbedQuery(ctx, query)
}

func (r *RateLimitedEmbedding) wait(ctx context.Context) error {
	err := r.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// deadline would pass before a token is available
	return fmt.Errorf("%w: rate limit wait: %w", domain.ErrEmbedding, err)
}
