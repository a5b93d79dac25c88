package mocks

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are deterministic per text and unit length.
type MockEmbeddingService struct {
	mu            sync.Mutex
	dimensions    int
	model         string
	maxInputChars int
	failures      int
	failErr       error

	EmbedCalls int
	QueryCalls int
	Texts      []string
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions:    384,
		model:         "mock-embedding-model",
		maxInputChars: 2000,
	}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedCalls++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	m.Texts = append(m.Texts, texts...)
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	return m.generateEmbedding(query), nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) MaxInputChars() int {
	return m.maxInputChars
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

func (m *MockEmbeddingService) takeFailure() error {
	if m.failures == 0 {
		return nil
	}
	if m.failures > 0 {
		m.failures--
	}
	if m.failErr != nil {
		return m.failErr
	}
	return fmt.Errorf("%w: mock failure", domain.ErrEmbedding)
}

// generateEmbedding generates a deterministic embedding based on text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	var norm float64
	for i := range embedding {
		// Generate deterministic pseudo-random values in [-0.5, 0.5)
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/1000.0 - 0.5
		norm += float64(embedding[i]) * float64(embedding[i])
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}
	return embedding
}

// Helper methods for testing

// SetFailNext makes the next call fail with a retryable error
func (m *MockEmbeddingService) SetFailNext(fail bool) {
	if fail {
		m.SetFailures(1, nil)
	} else {
		m.SetFailures(0, nil)
	}
}

// SetFailures makes the next n calls fail with err (ErrEmbedding when nil).
// A negative n fails every call.
func (m *MockEmbeddingService) SetFailures(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.dimensions = dim
}

func (m *MockEmbeddingService) SetMaxInputChars(n int) {
	m.maxInputChars = n
}
