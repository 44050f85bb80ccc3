package model

import "context"

// Provider abstracts LLM provider implementations (Anthropic, OpenAI,
// Ollama) using provider-agnostic types from clron's model layer.
//
// This interface is defined in the model package (not provider package)
// to avoid import cycles: provider implementations can import model,
// and the orchestrator can use the Provider interface without importing
// the provider package.
type Provider interface {
	// Complete sends a request and returns the full response text.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Stream sends a request and delivers response fragments via
	// callback as they arrive. The callback runs on the delivery path,
	// so a slow consumer naturally paces provider reads. A non-nil
	// callback error stops the stream.
	Stream(ctx context.Context, req CompletionRequest, callback StreamCallback) error

	// GetModel returns the currently selected model name.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each fragment of a streamed response.
type StreamCallback func(fragment string) error

// Completion is the result of a single-shot completion call.
type Completion struct {
	Content   string
	MessageID string
	Model     string
}
