package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

// OpenAIEmbedding implements EmbeddingService using OpenAI's embedding API.
// Any OpenAI-compatible endpoint works through BaseURL.
type OpenAIEmbedding struct {
	apiKey        string
	model         string
	baseURL       string
	dimensions    int
	maxInputChars int
	batchSize     int
	sendDims      bool
	client        *http.Client
}

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const (
	openAIDefaultModel     = "text-embedding-3-small"
	openAIDefaultBaseURL   = "https://api.openai.com/v1"
	openAIDefaultMaxChars  = 8000 // ~8k token context, conservatively one char per token
	openAIDefaultBatchSize = 100
)

// NewOpenAIEmbedding creates a new OpenAI embedding service
func NewOpenAIEmbedding(settings domain.EmbeddingSettings) (*OpenAIEmbedding, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrConfig)
	}

	model := settings.Model
	if model == "" {
		model = openAIDefaultModel
	}

	baseURL := strings.TrimRight(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	dimensions, known := openAIModelDimensions[model]
	if !known {
		// Default to 1536 for unknown models
		dimensions = 1536
	}
	// text-embedding-3 models can shorten their output
	sendDims := false
	if settings.Dimensions > 0 && settings.Dimensions != dimensions {
		dimensions = settings.Dimensions
		sendDims = known && strings.HasPrefix(model, "text-embedding-3")
	}

	maxChars := settings.MaxInputChars
	if maxChars <= 0 {
		maxChars = openAIDefaultMaxChars
	}
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = openAIDefaultBatchSize
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIEmbedding{
		apiKey:        settings.APIKey,
		model:         model,
		baseURL:       baseURL,
		dimensions:    dimensions,
		maxInputChars: maxChars,
		batchSize:     batchSize,
		sendDims:      sendDims,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// embeddingRequest is the request body for OpenAI embedding API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the response from OpenAI embedding API
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts, splitting into API-sized batches
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]

		reqBody := embeddingRequest{
			Input:          batch,
			Model:          e.model,
			EncodingFormat: "float",
		}
		if e.sendDims {
			reqBody.Dimensions = e.dimensions
		}

		resp, err := e.doRequest(ctx, reqBody)
		if err != nil {
			return nil, err
		}

		// Sort by index to ensure order matches input
		ordered := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index >= 0 && d.Index < len(ordered) {
				ordered[d.Index] = d.Embedding
			}
		}
		for i, v := range ordered {
			if v == nil {
				return nil, fmt.Errorf("%w: no embedding returned for input %d", domain.ErrEmbedding, start+i)
			}
		}
		embeddings = append(embeddings, ordered...)
	}

	return embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned for query", domain.ErrEmbedding)
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// MaxInputChars returns the configured input limit
func (e *OpenAIEmbedding) MaxInputChars() int {
	return e.maxInputChars
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	// Make a small embedding request to verify connectivity
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// doRequest makes a request to the OpenAI embedding API.
// Transport errors, 429 and 5xx wrap domain.ErrEmbedding; other 4xx do not, so they are not retried.
func (e *OpenAIEmbedding) doRequest(ctx context.Context, reqBody embeddingRequest) (*embeddingResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request failed: %w", domain.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrEmbedding, err)
	}

	var embResp embeddingResponse
	parseErr := json.Unmarshal(respBody, &embResp)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("OpenAI API returned status %d", resp.StatusCode)
		if parseErr == nil && embResp.Error != nil {
			msg = fmt.Sprintf("%s: %s (type: %s, code: %s)", msg,
				embResp.Error.Message, embResp.Error.Type, embResp.Error.Code)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s", domain.ErrEmbedding, msg)
		}
		return nil, errors.New(msg)
	}

	if parseErr != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", domain.ErrEmbedding, parseErr)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("%w: OpenAI API error: %s (type: %s, code: %s)", domain.ErrEmbedding,
			embResp.Error.Message, embResp.Error.Type, embResp.Error.Code)
	}

	return &embResp, nil
}
