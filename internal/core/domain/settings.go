package domain

import (
	"fmt"
	"time"
)

// AIProvider identifies the embedding provider
type AIProvider string

const (
	AIProviderOpenAI AIProvider = "openai"
	AIProviderOllama AIProvider = "ollama"
	AIProviderHugot  AIProvider = "hugot" // local ONNX runtime
)

// EmbeddingSettings configures the embedding service.
// The same settings must be used for ingestion and query.
type EmbeddingSettings struct {
	Provider      AIProvider    `json:"provider" toml:"provider"`
	Model         string        `json:"model" toml:"model"`
	APIKey        string        `json:"-" toml:"api_key"` // Never serialize to JSON
	BaseURL       string        `json:"base_url,omitempty" toml:"base_url"`
	Dimensions    int           `json:"dimensions" toml:"dimensions"`
	MaxInputChars int           `json:"max_input_chars" toml:"max_input_chars"`
	BatchSize     int           `json:"batch_size" toml:"batch_size"`
	Timeout       time.Duration `json:"timeout" toml:"-"`
	ModelDir      string        `json:"model_dir,omitempty" toml:"model_dir"` // hugot model cache
}

// DefaultEmbeddingSettings returns sensible defaults
func DefaultEmbeddingSettings() EmbeddingSettings {
	return EmbeddingSettings{
		Provider:      AIProviderOpenAI,
		Model:         "text-embedding-3-small",
		Dimensions:    1536,
		MaxInputChars: 8000,
		BatchSize:     100,
		Timeout:       30 * time.Second,
	}
}

// IsConfigured returns true if embedding settings are properly configured
func (e *EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// Validate checks the settings can build a gateway.
func (e *EmbeddingSettings) Validate() error {
	if !e.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrConfig, e.Provider)
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return fmt.Errorf("%w: %s requires an API key", ErrConfig, e.Provider)
	}
	if e.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrConfig)
	}
	if e.BatchSize < 0 || e.MaxInputChars < 0 || e.Dimensions < 0 {
		return fmt.Errorf("%w: embedding limits must not be negative", ErrConfig)
	}
	return nil
}

// RequiresAPIKey returns true if this provider requires an API key
func (p AIProvider) RequiresAPIKey() bool {
	switch p {
	case AIProviderOllama, AIProviderHugot:
		return false // Self-hosted, no API key needed
	default:
		return true
	}
}

// IsValid returns true if this is a known provider
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOpenAI, AIProviderOllama, AIProviderHugot:
		return true
	default:
		return false
	}
}
