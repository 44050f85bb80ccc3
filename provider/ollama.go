package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"clron/model"
)

// OllamaProvider implements the Provider interface against a local
// Ollama server.
type OllamaProvider struct {
	client  *api.Client
	model   string
	baseURL string
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: Ollama server URL (default: "http://localhost:11434")
//   - model: Initial model to use (default: "llama3.1:latest")
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &OllamaProvider{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Complete implements Provider.Complete with a single-shot request.
func (p *OllamaProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: convertToOllamaMessages(req),
		Stream:   &stream,
		Options:  map[string]any{"temperature": defaultTemperature},
	}

	var content strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}

	return &model.Completion{
		Content: content.String(),
		Model:   p.model,
	}, nil
}

// Stream implements Provider.Stream with incremental delivery.
func (p *OllamaProvider) Stream(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
	stream := true
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: convertToOllamaMessages(req),
		Stream:   &stream,
		Options:  map[string]any{"temperature": defaultTemperature},
	}

	return p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if callback != nil && resp.Message.Content != "" {
			return callback(resp.Message.Content)
		}
		return nil
	})
}

// GetModel implements Provider.GetModel.
func (p *OllamaProvider) GetModel() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OllamaProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("Ollama ping failed: %w", err)
	}
	return nil
}

// convertToOllamaMessages converts a clron completion request to
// Ollama chat format. The system prompt rides as a leading system
// message; image blocks become raw bytes on the current user message.
func convertToOllamaMessages(req model.CompletionRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}

	for _, turn := range req.History {
		if turn.Content == "" {
			continue
		}
		messages = append(messages, api.Message{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	current := api.Message{Role: "user"}
	for _, block := range req.Blocks {
		switch block.Type {
		case model.BlockText:
			current.Content = block.Text
		case model.BlockImage:
			raw, err := base64.StdEncoding.DecodeString(block.Data)
			if err != nil {
				continue // Skip images we cannot decode
			}
			current.Images = append(current.Images, api.ImageData(raw))
		}
	}

	if current.Content != "" || len(current.Images) > 0 {
		messages = append(messages, current)
	}

	return messages
}
