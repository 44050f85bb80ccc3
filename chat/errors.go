package chat

import "errors"

// Fatal error classes. Everything else in the pipeline degrades.
var (
	// ErrServiceUnavailable means no completion provider was configured
	// at startup. Checked before any other work on every request.
	ErrServiceUnavailable = errors.New("completion service is unavailable")

	// ErrBadImage reports an upload whose declared content type is not
	// an image type.
	ErrBadImage = errors.New("invalid image format")
)

// ProviderError wraps a remote completion failure. Fatal in buffered
// mode; framed as a distinct stream event in streaming mode.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return "failed to get response: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// emitError marks a failure to deliver an event to the caller (the
// client went away). It is distinguished from provider failures so the
// stream pipeline can stop consuming fragments and skip persistence.
type emitError struct {
	err error
}

func (e *emitError) Error() string {
	return "event delivery failed: " + e.err.Error()
}

func (e *emitError) Unwrap() error {
	return e.err
}
