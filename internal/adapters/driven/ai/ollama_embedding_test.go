package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ollamaServer embeds each input as [len(input), batch position].
func ollamaServer(t *testing.T, status int, batches *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"model failed"}`))
			return
		}
		if batches != nil {
			*batches = append(*batches, len(req.Input))
		}
		embeddings := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			embeddings[i] = []float32{float32(len(text)), float32(i), 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})
	}))
}

func ollamaSettings(url string) domain.EmbeddingSettings {
	return domain.EmbeddingSettings{
		Provider:   domain.AIProviderOllama,
		Model:      "nomic-embed-text",
		BaseURL:    url,
		Dimensions: 3,
	}
}

func TestNewOllamaEmbedding_Defaults(t *testing.T) {
	emb, err := NewOllamaEmbedding(domain.EmbeddingSettings{Provider: domain.AIProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, ollamaDefaultModel, emb.Model())
	assert.Equal(t, 768, emb.Dimensions())
	assert.Equal(t, ollamaDefaultMaxChars, emb.MaxInputChars())

	emb, err = NewOllamaEmbedding(domain.EmbeddingSettings{Model: "mxbai-embed-large:latest"})
	require.NoError(t, err)
	assert.Equal(t, 1024, emb.Dimensions())
}

func TestNewOllamaEmbedding_UnknownModelNeedsDimensions(t *testing.T) {
	_, err := NewOllamaEmbedding(domain.EmbeddingSettings{Model: "llama3"})
	assert.ErrorIs(t, err, domain.ErrConfig)

	emb, err := NewOllamaEmbedding(domain.EmbeddingSettings{Model: "llama3", Dimensions: 4096})
	require.NoError(t, err)
	assert.Equal(t, 4096, emb.Dimensions())
}

func TestOllamaEmbedding_Embed(t *testing.T) {
	var batches []int
	server := ollamaServer(t, http.StatusOK, &batches)
	defer server.Close()

	s := ollamaSettings(server.URL)
	s.BatchSize = 2
	emb, err := NewOllamaEmbedding(s)
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc"}
	vectors, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, []int{2, 1}, batches)

	q, err := emb.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, float32(4), q[0])
}

func TestOllamaEmbedding_ErrorClassification(t *testing.T) {
	testCases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			server := ollamaServer(t, tc.status, nil)
			defer server.Close()

			emb, err := NewOllamaEmbedding(ollamaSettings(server.URL))
			require.NoError(t, err)

			_, err = emb.Embed(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tc.retryable, domain.IsRetryable(err), "err: %v", err)
		})
	}
}

func TestOllamaEmbedding_Unreachable(t *testing.T) {
	emb, err := NewOllamaEmbedding(ollamaSettings("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.ErrorIs(t, emb.HealthCheck(context.Background()), domain.ErrEmbedding)
}

func TestOllamaEmbedding_HealthCheck(t *testing.T) {
	server := ollamaServer(t, http.StatusOK, nil)
	defer server.Close()

	emb, err := NewOllamaEmbedding(ollamaSettings(server.URL))
	require.NoError(t, err)
	assert.NoError(t, emb.HealthCheck(context.Background()))
}

func TestClassifyOllamaError_Canceled(t *testing.T) {
	err := classifyOllamaError(context.Canceled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, domain.IsRetryable(err))
}
