package model

// Block types for the current turn's content.
const (
	BlockText  = "text"
	BlockImage = "image"
)

// ContentBlock is one ordered piece of the current turn: either text
// or a base64-encoded image with its MIME type.
type ContentBlock struct {
	Type      string
	Text      string
	MediaType string
	Data      string // base64 payload, image blocks only
}

// CompletionRequest is the provider-agnostic request shape. It is
// constructed fresh for every turn and never reused.
//
// Blocks hold the current turn's content in order: the text block
// first (omitted when the message is empty), then the image block if
// one is present. History holds prior turns projected to plain text;
// images from history are never re-attached.
type CompletionRequest struct {
	Blocks       []ContentBlock
	History      []Turn
	SystemPrompt string
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock builds a base64 image content block.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Data: data}
}
