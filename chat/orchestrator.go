// Package chat sequences one user turn through the completion
// pipeline: image normalization, history assembly, the provider call,
// and persistence of the exchange.
//
// The degrade-or-fail policy is explicit per collaborator: the
// provider call is mandatory (its failure fails the request), while
// image processing, history loading, blob upload and persistence are
// enrichment steps whose failures are logged and degraded, never
// propagated.
package chat

import (
	"context"
	"encoding/base64"
	"log"

	"clron/blob"
	"clron/imageutil"
	"clron/model"
)

// DefaultSystemPrompt is used when neither the request nor the
// configuration supplies one.
const DefaultSystemPrompt = "You are a helpful, friendly AI assistant who adapts to the user's communication style. Be natural and engaging."

// DefaultHistoryLimit bounds how many prior messages are loaded when
// continuing a conversation.
const DefaultHistoryLimit = 20

// HistoryStore is the subset of the chat store the orchestrator needs.
type HistoryStore interface {
	Append(userID string, turn model.Turn) (string, error)
	Messages(userID, chatID string, limit int) ([]model.Turn, error)
}

// Config wires an Orchestrator. Provider may be nil: the orchestrator
// then rejects every request with ErrServiceUnavailable, which is a
// startup configuration fact surfaced per request as a cheap
// precondition.
type Config struct {
	Provider            model.Provider
	Store               HistoryStore
	Blobs               blob.Store
	DefaultSystemPrompt string
	ImageBudgetKB       int
	HistoryLimit        int
}

// Orchestrator runs the chat turn pipeline. Safe for concurrent use:
// all per-request state lives on the stack, and the provider handle is
// never mutated after construction.
type Orchestrator struct {
	provider      model.Provider
	store         HistoryStore
	blobs         blob.Store
	defaultPrompt string
	imageBudgetKB int
	historyLimit  int
}

// NewOrchestrator builds an orchestrator from its collaborators.
func NewOrchestrator(cfg Config) *Orchestrator {
	budget := cfg.ImageBudgetKB
	if budget <= 0 {
		budget = imageutil.DefaultBudgetKB
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Orchestrator{
		provider:      cfg.Provider,
		store:         cfg.Store,
		blobs:         cfg.Blobs,
		defaultPrompt: cfg.DefaultSystemPrompt,
		imageBudgetKB: budget,
		historyLimit:  limit,
	}
}

// TurnRequest is one inbound chat turn. The image arrives either as a
// base64 data URI (ImageData) or as raw bytes with a declared type
// (ImageBytes/ImageType, the file-upload variant).
type TurnRequest struct {
	Message      string `json:"message"`
	ImageData    string `json:"image_data,omitempty"`
	ChatID       string `json:"chat_id,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	ImageBytes []byte `json:"-"`
	ImageType  string `json:"-"`
}

// TurnResponse is the buffered-mode result.
type TurnResponse struct {
	Content  string `json:"content"`
	ChatID   string `json:"chat_id,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Turn runs one buffered chat turn: normalize and upload the image if
// present, load history, call the provider, persist both sides of the
// exchange, and return the full response.
func (o *Orchestrator) Turn(ctx context.Context, caller model.Caller, req TurnRequest) (*TurnResponse, error) {
	if o.provider == nil {
		return nil, ErrServiceUnavailable
	}

	img := o.prepareImage(caller, req)
	history := o.loadHistory(caller, req.ChatID)

	completion, err := o.provider.Complete(ctx, o.buildRequest(req, img, history))
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	// Buffered mode delivers the response either way; only the echoed
	// id depends on how far the write got.
	chatID, _ := o.persistExchange(caller, req.Message, img.URL, completion.Content, req.ChatID)

	return &TurnResponse{
		Content:  completion.Content,
		ChatID:   chatID,
		ImageURL: img.URL,
	}, nil
}

// preparedImage is the normalized, possibly uploaded image attached to
// the current turn. Zero value means "no image".
type preparedImage struct {
	Data      string // base64 payload
	MediaType string
	URL       string // set only when blob upload succeeded
}

// prepareImage normalizes the request's image under the byte budget
// and uploads it for authenticated callers. Best-effort: any failure
// degrades to "no image" (or "no URL") with a warning.
func (o *Orchestrator) prepareImage(caller model.Caller, req TurnRequest) preparedImage {
	var img preparedImage

	switch {
	case req.ImageData != "":
		payload, mimeType, err := imageutil.Normalize(req.ImageData, o.imageBudgetKB)
		if err != nil {
			log.Printf("[Chat] Warning: image processing failed: %v", err)
			return preparedImage{}
		}
		img = preparedImage{Data: payload, MediaType: mimeType}

	case len(req.ImageBytes) > 0:
		data, mimeType := imageutil.NormalizeBytes(req.ImageBytes, req.ImageType, o.imageBudgetKB)
		img = preparedImage{Data: base64.StdEncoding.EncodeToString(data), MediaType: mimeType}

	default:
		return preparedImage{}
	}

	if caller.IsAnonymous() || o.blobs == nil {
		return img
	}

	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		log.Printf("[Chat] Warning: image payload not decodable for upload: %v", err)
		return img
	}

	url, err := o.blobs.Put(caller.UserID, raw, img.MediaType)
	if err != nil {
		// Upload never blocks text delivery; the turn just loses its URL.
		log.Printf("[Chat] Warning: image upload failed: %v", err)
		return img
	}
	img.URL = url

	return img
}

// loadHistory fetches prior turns for a continuation. Fails soft: any
// store error yields empty history with a warning.
func (o *Orchestrator) loadHistory(caller model.Caller, chatID string) []model.Turn {
	if caller.IsAnonymous() || chatID == "" || o.store == nil {
		return nil
	}

	history, err := o.store.Messages(caller.UserID, chatID, o.historyLimit)
	if err != nil {
		log.Printf("[Chat] Warning: failed to load history for %s: %v", chatID, err)
		return nil
	}
	return history
}

// buildRequest shapes the completion request: the text block first
// (omitted when empty), then the image block if present, prior turns
// as plain text.
func (o *Orchestrator) buildRequest(req TurnRequest, img preparedImage, history []model.Turn) model.CompletionRequest {
	var blocks []model.ContentBlock
	if req.Message != "" {
		blocks = append(blocks, model.TextBlock(req.Message))
	}
	if img.Data != "" {
		blocks = append(blocks, model.ImageBlock(img.MediaType, img.Data))
	}

	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = o.defaultPrompt
	}
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	return model.CompletionRequest{
		Blocks:       blocks,
		History:      history,
		SystemPrompt: prompt,
	}
}

// persistExchange appends the user and assistant turns under one chat
// id. Returns the id the response should echo and whether BOTH turns
// were stored; a half-written exchange reports false. A no-op for
// anonymous callers. Store failures are warnings: the response is
// delivered with whatever id was known before the failed write.
func (o *Orchestrator) persistExchange(caller model.Caller, message, imageURL, content, chatID string) (string, bool) {
	if caller.IsAnonymous() || o.store == nil {
		return chatID, false
	}

	id, err := o.store.Append(caller.UserID, model.Turn{
		Role:     model.RoleUser,
		Content:  message,
		ImageURL: imageURL,
		ChatID:   chatID,
	})
	if err != nil {
		log.Printf("[Chat] Warning: failed to save user turn: %v", err)
		return chatID, false
	}
	chatID = id

	if _, err := o.store.Append(caller.UserID, model.Turn{
		Role:    model.RoleAssistant,
		Content: content,
		ChatID:  chatID,
	}); err != nil {
		log.Printf("[Chat] Warning: failed to save assistant turn: %v", err)
		return chatID, false
	}

	return chatID, true
}
