package model

import "encoding/json"

// StreamEventType tags one framed unit of a streaming response.
type StreamEventType string

const (
	// StreamMetadata is always the first event: known chat id and
	// uploaded image URL (both null when absent).
	StreamMetadata StreamEventType = "metadata"
	// StreamContent carries one response fragment, in arrival order.
	StreamContent StreamEventType = "content"
	// StreamError frames a mid-stream provider failure distinctly from
	// genuine content.
	StreamError StreamEventType = "error"
	// StreamFinal carries the chat id both turns were persisted under.
	// Emitted only when persistence succeeded.
	StreamFinal StreamEventType = "final"
	// StreamDone is the mandatory terminal sentinel, always last.
	StreamDone StreamEventType = "done"
)

// StreamEvent is one framed unit of a streaming response.
type StreamEvent struct {
	Type     StreamEventType
	ChatID   string // metadata, final
	ImageURL string // metadata
	Content  string // content
	Error    string // error
}

// MarshalJSON emits the per-type wire envelope. The metadata event
// always carries chat_id and image_url keys, null when unset, so
// clients can rely on their presence.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case StreamMetadata:
		return json.Marshal(struct {
			Type     StreamEventType `json:"type"`
			ChatID   *string         `json:"chat_id"`
			ImageURL *string         `json:"image_url"`
		}{e.Type, nullable(e.ChatID), nullable(e.ImageURL)})
	case StreamContent:
		return json.Marshal(struct {
			Type    StreamEventType `json:"type"`
			Content string          `json:"content"`
		}{e.Type, e.Content})
	case StreamError:
		return json.Marshal(struct {
			Type  StreamEventType `json:"type"`
			Error string          `json:"error"`
		}{e.Type, e.Error})
	case StreamFinal:
		return json.Marshal(struct {
			Type   StreamEventType `json:"type"`
			ChatID string          `json:"chat_id"`
		}{e.Type, e.ChatID})
	default:
		return json.Marshal(struct {
			Type StreamEventType `json:"type"`
		}{e.Type})
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
