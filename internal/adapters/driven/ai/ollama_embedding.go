package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure OllamaEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OllamaEmbedding)(nil)

const (
	ollamaDefaultModel     = "nomic-embed-text"
	ollamaDefaultBaseURL   = "http://localhost:11434"
	ollamaDefaultMaxChars  = 2048
	ollamaDefaultBatchSize = 32
)

var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// OllamaEmbedding embeds through a local Ollama server's /api/embed.
type OllamaEmbedding struct {
	client        *api.Client
	model         string
	dimensions    int
	maxInputChars int
	batchSize     int
}

// NewOllamaEmbedding creates an Ollama embedding service.
// Dimensions must be set for models not in the built-in table.
func NewOllamaEmbedding(settings domain.EmbeddingSettings) (*OllamaEmbedding, error) {
	model := settings.Model
	if model == "" {
		model = ollamaDefaultModel
	}

	rawURL := strings.TrimRight(settings.BaseURL, "/")
	if rawURL == "" {
		rawURL = ollamaDefaultBaseURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Ollama URL %q: %w", domain.ErrConfig, rawURL, err)
	}

	dimensions := settings.Dimensions
	if dimensions == 0 {
		// tags like nomic-embed-text:latest share the base model size
		dimensions = ollamaModelDimensions[strings.SplitN(model, ":", 2)[0]]
	}
	if dimensions == 0 {
		return nil, fmt.Errorf("%w: dimensions unknown for Ollama model %s", domain.ErrConfig, model)
	}

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxChars := settings.MaxInputChars
	if maxChars <= 0 {
		maxChars = ollamaDefaultMaxChars
	}
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = ollamaDefaultBatchSize
	}

	return &OllamaEmbedding{
		client:        api.NewClient(base, &http.Client{Timeout: timeout}),
		model:         model,
		dimensions:    dimensions,
		maxInputChars: maxChars,
		batchSize:     batchSize,
	}, nil
}

// Embed generates embeddings for multiple texts
func (e *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: batch})
		if err != nil {
			return nil, classifyOllamaError(err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs",
				domain.ErrEmbedding, len(resp.Embeddings), len(batch))
		}
		out = append(out, resp.Embeddings...)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OllamaEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OllamaEmbedding) Model() string {
	return e.model
}

// MaxInputChars returns the input limit
func (e *OllamaEmbedding) MaxInputChars() int {
	return e.maxInputChars
}

// HealthCheck verifies the Ollama server answers
func (e *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	if err := e.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: ollama unreachable: %w", domain.ErrEmbedding, err)
	}
	return nil
}

// Close releases resources
func (e *OllamaEmbedding) Close() error {
	return nil
}

// classifyOllamaError marks rate limits, server errors and transport failures retryable.
func classifyOllamaError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return fmt.Errorf("%w: ollama status %d: %s", domain.ErrEmbedding, statusErr.StatusCode, statusErr.ErrorMessage)
		}
		return fmt.Errorf("ollama rejected request (status %d): %s", statusErr.StatusCode, statusErr.ErrorMessage)
	}
	return fmt.Errorf("%w: ollama request failed: %w", domain.ErrEmbedding, err)
}
