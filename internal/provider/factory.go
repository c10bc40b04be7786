package provider

import "fmt"

// NewProvider creates a provider based on configuration.
//
// Supported provider types:
//   - TypeOpenAI: any OpenAI-compatible endpoint, Gemini's by default
//   - TypeAnthropic: Anthropic Messages API
//   - TypeOllama: local Ollama server
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Type {
	case TypeOpenAI, "":
		return NewOpenAIProvider(cfg)
	case TypeAnthropic:
		return NewAnthropicProvider(cfg)
	case TypeOllama:
		return NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
