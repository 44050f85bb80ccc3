package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"clron/model"
)

// sseWriter frames stream events as server-sent events. Headers are
// written lazily on the first event so early failures can still be
// reported as a plain JSON error response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) Started() bool { return s.started }

func (s *sseWriter) WriteEvent(event model.StreamEvent) error {
	if event.Type == model.StreamDone {
		// The terminal frame is a bare sentinel, not json.
		return s.writeFrame("[DONE]")
	}
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %v", err)
	}
	return s.writeFrame(string(b))
}

func (s *sseWriter) writeFrame(data string) error {
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}
