package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"clron/model"
)

// EmitFunc delivers one framed event to the caller. It runs on the
// response-delivery path: when the transport cannot accept data, the
// emit call blocks and fragment consumption (and thus provider reads)
// pauses with it. A non-nil error means the caller is gone.
type EmitFunc func(event model.StreamEvent) error

// StreamTurn runs one streaming chat turn, framing the response as an
// ordered event sequence: exactly one metadata event first, content
// events in arrival order, at most one error event on provider
// failure, one final event iff the exchange was persisted, and a
// terminal done event always last.
//
// If the caller disconnects mid-stream, fragment consumption stops and
// nothing is persisted: a half-delivered assistant turn is never
// written, and the user turn is withheld with it so a conversation
// never ends on a dangling user message.
//
// If the provider fails mid-stream, the failure is framed as a
// distinct error event; content accumulated before the failure is
// still persisted, then the stream terminates normally.
func (o *Orchestrator) StreamTurn(ctx context.Context, caller model.Caller, req TurnRequest, emit EmitFunc) error {
	if o.provider == nil {
		return ErrServiceUnavailable
	}

	img := o.prepareImage(caller, req)
	history := o.loadHistory(caller, req.ChatID)

	if err := emit(model.StreamEvent{
		Type:     model.StreamMetadata,
		ChatID:   req.ChatID,
		ImageURL: img.URL,
	}); err != nil {
		return err
	}

	var content strings.Builder
	streamErr := o.provider.Stream(ctx, o.buildRequest(req, img, history), func(fragment string) error {
		if err := emit(model.StreamEvent{Type: model.StreamContent, Content: fragment}); err != nil {
			return &emitError{err: err}
		}
		content.WriteString(fragment)
		return nil
	})

	if streamErr != nil {
		var delivery *emitError
		if errors.As(streamErr, &delivery) {
			// Caller went away: stop, skip persistence of the
			// incomplete exchange.
			return delivery.err
		}

		log.Printf("[Chat] Warning: provider stream failed: %v", streamErr)
		if err := emit(model.StreamEvent{Type: model.StreamError, Error: streamErr.Error()}); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		// Disconnected between fragments.
		return err
	}

	chatID := req.ChatID
	persisted := false
	if shouldPersist(caller, streamErr, content.Len()) {
		chatID, persisted = o.persistExchange(caller, req.Message, img.URL, content.String(), req.ChatID)
	}

	if persisted {
		if err := emit(model.StreamEvent{Type: model.StreamFinal, ChatID: chatID}); err != nil {
			return err
		}
	}

	return emit(model.StreamEvent{Type: model.StreamDone})
}

// shouldPersist gates the write: anonymous exchanges are never stored,
// and a provider failure with nothing accumulated leaves nothing worth
// storing.
func shouldPersist(caller model.Caller, streamErr error, accumulated int) bool {
	if caller.IsAnonymous() {
		return false
	}
	if streamErr != nil && accumulated == 0 {
		return false
	}
	return true
}
