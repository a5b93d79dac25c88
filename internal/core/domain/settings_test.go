package domain

import (
	"errors"
	"testing"
)

func TestAIProviderConstants(t *testing.T) {
	tests := []struct {
		provider AIProvider
		expected string
	}{
		{AIProviderOpenAI, "openai"},
		{AIProviderOllama, "ollama"},
		{AIProviderHugot, "hugot"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.provider))
			}
		})
	}
}

func TestAIProvider_RequiresAPIKey(t *testing.T) {
	if !AIProviderOpenAI.RequiresAPIKey() {
		t.Error("openai should require an API key")
	}
	if AIProviderOllama.RequiresAPIKey() || AIProviderHugot.RequiresAPIKey() {
		t.Error("self-hosted providers should not require an API key")
	}
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		want     bool
	}{
		{"empty", EmbeddingSettings{}, false},
		{"openai without key", EmbeddingSettings{Provider: AIProviderOpenAI}, false},
		{"openai with key", EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "sk"}, true},
		{"ollama", EmbeddingSettings{Provider: AIProviderOllama}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmbeddingSettings_Validate(t *testing.T) {
	s := DefaultEmbeddingSettings()
	s.APIKey = "sk-test"
	if err := s.Validate(); err != nil {
		t.Fatalf("expected defaults with key to validate, got %v", err)
	}

	bad := []EmbeddingSettings{
		{Provider: "cohere", Model: "m"},
		{Provider: AIProviderOpenAI, Model: "m"},
		{Provider: AIProviderOllama},
		{Provider: AIProviderOllama, Model: "m", BatchSize: -1},
	}
	for _, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("%+v: expected ErrConfig, got %v", b, err)
		}
	}
}
