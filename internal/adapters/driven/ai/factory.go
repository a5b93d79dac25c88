package ai

import (
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// FactoryConfig holds the decorators applied to every gateway the factory builds
type FactoryConfig struct {
	// Cache, when set, serves repeated texts without a gateway call
	Cache driven.EmbeddingCache

	// RequestsPerSecond limits gateway calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Factory creates embedding services based on configuration
type Factory struct {
	cfg FactoryConfig
}

// NewFactory creates a new embedding service factory
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{cfg: cfg}
}

// CreateEmbeddingService builds the gateway for settings.Provider and wraps it
// with the rate limiter and cache. The limiter sits under the cache so hits are free.
func (f *Factory) CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var (
		svc driven.EmbeddingService
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err = NewOpenAIEmbedding(settings)
	case domain.AIProviderOllama:
		svc, err = NewOllamaEmbedding(settings)
	case domain.AIProviderHugot:
		svc, err = NewHugotEmbedding(settings)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfig, settings.Provider)
	}
	if err != nil {
		return nil, err
	}

	if f.cfg.RequestsPerSecond > 0 {
		svc = NewRateLimitedEmbedding(svc, f.cfg.RequestsPerSecond, f.cfg.Burst)
	}
	if f.cfg.Cache != nil {
		svc = NewCachedEmbedding(svc, f.cfg.Cache, f.cfg.Logger)
	}

	f.cfg.Logger.Info("embedding gateway ready",
		"provider", settings.Provider,
		"model", svc.Model(),
		"dimensions", svc.Dimensions(),
		"max_input_chars", svc.MaxInputChars(),
	)
	return svc, nil
}
