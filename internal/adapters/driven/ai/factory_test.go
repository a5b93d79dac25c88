package ai

import (
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven/mocks"
)

func TestFactory_CreateEmbeddingService_Invalid(t *testing.T) {
	factory := NewFactory(FactoryConfig{})

	testCases := []struct {
		name     string
		settings domain.EmbeddingSettings
	}{
		{"empty provider", domain.EmbeddingSettings{Model: "m"}},
		{"unknown provider", domain.EmbeddingSettings{Provider: "voyage", Model: "m"}},
		{"openai without key", domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, Model: "text-embedding-3-small"}},
		{"missing model", domain.EmbeddingSettings{Provider: domain.AIProviderOllama}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := factory.CreateEmbeddingService(tc.settings)
			if !errors.Is(err, domain.ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
			if svc != nil {
				t.Error("expected nil service")
			}
		})
	}
}

func TestFactory_CreateEmbeddingService_OpenAI(t *testing.T) {
	factory := NewFactory(FactoryConfig{})

	svc, err := factory.CreateEmbeddingService(openAISettings(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.(*OpenAIEmbedding); !ok {
		t.Errorf("expected *OpenAIEmbedding, got %T", svc)
	}
}

func TestFactory_CreateEmbeddingService_Ollama(t *testing.T) {
	factory := NewFactory(FactoryConfig{})

	svc, err := factory.CreateEmbeddingService(domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "nomic-embed-text",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Dimensions() != 768 {
		t.Errorf("expected 768 dimensions, got %d", svc.Dimensions())
	}
}

func TestFactory_Decorators(t *testing.T) {
	factory := NewFactory(FactoryConfig{
		Cache:             newMapCache(),
		RequestsPerSecond: 10,
		Burst:             2,
	})

	svc, err := factory.CreateEmbeddingService(openAISettings(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cached, ok := svc.(*CachedEmbedding)
	if !ok {
		t.Fatalf("expected cache outermost, got %T", svc)
	}
	if _, ok := cached.EmbeddingService.(*RateLimitedEmbedding); !ok {
		t.Errorf("expected rate limiter under the cache, got %T", cached.EmbeddingService)
	}
	if svc.Model() != "text-embedding-3-small" {
		t.Errorf("decorators must forward Model, got %s", svc.Model())
	}
}

func TestNewRateLimitedEmbedding_ClampsBurst(t *testing.T) {
	svc := mocks.NewMockEmbeddingService()
	wrapped := NewRateLimitedEmbedding(svc, 5, 0)
	if wrapped.limiter.Burst() != 1 {
		t.Errorf("expected burst clamped to 1, got %d", wrapped.limiter.Burst())
	}
}
