package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure CachedEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*CachedEmbedding)(nil)

// CachedEmbedding serves repeated texts from an EmbeddingCache.
// Cache failures are logged and fall through to the gateway.
type CachedEmbedding struct {
	driven.EmbeddingService
	cache  driven.EmbeddingCache
	logger *slog.Logger
}

// NewCachedEmbedding wraps next with cache.
func NewCachedEmbedding(next driven.EmbeddingService, cache driven.EmbeddingCache, logger *slog.Logger) *CachedEmbedding {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedding{EmbeddingService: next, cache: cache, logger: logger}
}

// cacheKey scopes a text to the model and its output size.
func (c *CachedEmbedding) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.Model()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(c.Dimensions())))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		vec, ok, err := c.cache.Get(ctx, keys[i])
		if err != nil {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		if ok && len(vec) == c.Dimensions() {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.EmbeddingService.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("%w: gateway returned %d embeddings for %d inputs", domain.ErrEmbedding, len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		i := missIdx[j]
		out[i] = vec
		if err := c.cache.Set(ctx, keys[i], vec); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

func (c *CachedEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
