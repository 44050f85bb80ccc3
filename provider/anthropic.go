package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"clron/model"
)

// AnthropicProvider implements the Provider interface using Anthropic's
// official API. It uses the official Anthropic Go SDK for direct Claude
// API access.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
	apiKey  string
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: Initial model to use (default: "claude-sonnet-4-5-20250929")
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var anthropicModel anthropic.Model
	if model == "" {
		anthropicModel = anthropic.ModelClaudeSonnet4_5_20250929
	} else {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client, // Convert value to pointer
		model:   anthropicModel,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Complete implements Provider.Complete with a single-shot request.
func (p *AnthropicProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	resp, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("Anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(textBlock.Text)
		}
	}

	return &model.Completion{
		Content:   content.String(),
		MessageID: resp.ID,
		Model:     string(resp.Model),
	}, nil
}

// Stream implements Provider.Stream with incremental delivery.
func (p *AnthropicProvider) Stream(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	// Accumulate message
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()

		err := msg.Accumulate(event)
		if err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if callback != nil {
					if err := callback(deltaVariant.Text); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	return nil
}

func (p *AnthropicProvider) buildParams(req model.CompletionRequest) anthropic.MessageNewParams {
	messages := convertToAnthropicMessages(req)

	params := anthropic.MessageNewParams{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   defaultMaxTokens, // Required by Anthropic API
		Temperature: anthropic.Float(defaultTemperature),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	return params
}

// GetModel implements Provider.GetModel.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// SetModel implements Provider.SetModel.
func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements Provider.Ping by attempting to create a minimal request.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	// Anthropic doesn't have a ping/health endpoint, so we make a minimal request
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})

	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}

// convertToAnthropicMessages converts a clron completion request to
// Anthropic format. History turns become single-block text messages;
// the current turn's content blocks map to text and base64 image
// blocks in order.
func convertToAnthropicMessages(req model.CompletionRequest) []anthropic.MessageParam {
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(req.History)+1)

	for _, turn := range req.History {
		if turn.Content == "" {
			continue
		}

		switch turn.Role {
		case model.RoleAssistant:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)),
			)
		default:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)),
			)
		}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Blocks))
	for _, block := range req.Blocks {
		switch block.Type {
		case model.BlockText:
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		case model.BlockImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(block.MediaType, block.Data))
		}
	}

	if len(blocks) > 0 {
		anthropicMsgs = append(anthropicMsgs, anthropic.NewUserMessage(blocks...))
	}

	return anthropicMsgs
}
