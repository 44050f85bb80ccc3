package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"clron/model"
)

// OpenAIProvider implements the Provider interface using OpenAI's
// official API. It uses the official OpenAI Go SDK for direct OpenAI
// API access.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini" // Default to affordable model
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Complete implements Provider.Complete with a single-shot request.
func (p *OpenAIProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("OpenAI request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI response contained no choices")
	}

	return &model.Completion{
		Content:   resp.Choices[0].Message.Content,
		MessageID: resp.ID,
		Model:     resp.Model,
	}, nil
}

// Stream implements Provider.Stream with incremental delivery.
func (p *OpenAIProvider) Stream(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if callback != nil {
				if err := callback(chunk.Choices[0].Delta.Content); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	return nil
}

func (p *OpenAIProvider) buildParams(req model.CompletionRequest) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages:            convertToOpenAIMessages(req),
		Model:               openai.ChatModel(p.model),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
		Temperature:         openai.Float(defaultTemperature),
	}
}

// GetModel implements Provider.GetModel.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}

// convertToOpenAIMessages converts a clron completion request to
// OpenAI chat format. Images travel as data-URI image parts.
func convertToOpenAIMessages(req model.CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, turn := range req.History {
		if turn.Content == "" {
			continue
		}

		switch turn.Role {
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Blocks))
	for _, block := range req.Blocks {
		switch block.Type {
		case model.BlockText:
			parts = append(parts, openai.TextContentPart(block.Text))
		case model.BlockImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:" + block.MediaType + ";base64," + block.Data,
			}))
		}
	}

	if len(parts) > 0 {
		messages = append(messages, openai.UserMessage(parts))
	}

	return messages
}
