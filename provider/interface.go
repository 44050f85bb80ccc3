// Package provider implements the completion clients behind the
// model.Provider interface.
//
// clron talks to one of several LLM vendors (Anthropic, OpenAI, local
// Ollama) through a common interface so the orchestration layer stays
// provider-agnostic. Each vendor file handles the conversion between
// clron's provider-agnostic request shape and the vendor SDK's types.
//
// The Provider interface itself lives in the model package
// (model/provider.go) to avoid import cycles; this package implements
// it.
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeOllama    ProviderType = "ollama"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // For OpenAI/Anthropic (unused for Ollama)
}

// Request defaults shared by all providers.
const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
)
