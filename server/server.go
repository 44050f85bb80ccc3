// Package server is the HTTP transport for the chat backend: JSON
// endpoints for buffered turns, an SSE endpoint for streaming turns, a
// multipart upload variant, and conversation listing for authenticated
// callers.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"clron/auth"
	"clron/blob"
	"clron/chat"
	"clron/config"
	"clron/model"
	"clron/storage"
)

const Version = "0.1.0"

const (
	defaultListLimit = 100
	maxUploadBytes   = 20 << 20
)

// Server wires the orchestrator and stores to HTTP routes.
type Server struct {
	Orchestrator *chat.Orchestrator
	Store        *storage.ChatStore
	Blobs        *blob.LocalStore
	Verifier     auth.Verifier
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat/upload", s.handleChatUpload)

	mux.HandleFunc("GET /api/chats", s.handleChats)
	mux.HandleFunc("GET /api/chats/{chat_id}", s.handleChatMessages)

	if s.Blobs != nil {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(s.Blobs.Dir()))))
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runTurn(w, r, req)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.runStream(w, r, req)
}

// handleChatUpload accepts the multipart variant of a chat turn: the
// image arrives as a file part instead of a base64 data URI.
func (s *Server) handleChatUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	req := chat.TurnRequest{
		Message:      r.FormValue("message"),
		ChatID:       r.FormValue("chat_id"),
		SystemPrompt: r.FormValue("system_prompt"),
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		mimeType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			writeError(w, statusForError(chat.ErrBadImage), chat.ErrBadImage.Error())
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read image: %v", err))
			return
		}
		req.ImageBytes = data
		req.ImageType = mimeType
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image part: %v", err))
		return
	}

	if wantsStream(r.FormValue("stream")) {
		s.runStream(w, r, req)
		return
	}
	s.runTurn(w, r, req)
}

func (s *Server) runTurn(w http.ResponseWriter, r *http.Request, req chat.TurnRequest) {
	caller := s.callerFrom(r)

	resp, err := s.Orchestrator.Turn(r.Context(), caller, req)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runStream(w http.ResponseWriter, r *http.Request, req chat.TurnRequest) {
	caller := s.callerFrom(r)

	sse := newSSEWriter(w)
	err := s.Orchestrator.StreamTurn(r.Context(), caller, req, sse.WriteEvent)
	if err != nil && !sse.Started() {
		// Nothing was sent yet, so a plain JSON error is still
		// possible.
		writeError(w, statusForError(err), err.Error())
		return
	}
	if err != nil && config.Debug {
		config.DebugLog.Printf("SSE stream ended early: %v", err)
	}
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	caller := s.callerFrom(r)
	if caller.IsAnonymous() {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	summaries, err := s.Store.Chats(caller.UserID, listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": summaries})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	caller := s.callerFrom(r)
	if caller.IsAnonymous() {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	chatID := r.PathValue("chat_id")
	turns, err := s.Store.Messages(caller.UserID, chatID, listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id":  chatID,
		"messages": turns,
	})
}

// callerFrom resolves the bearer token to a caller. Absent or
// unverifiable tokens degrade to anonymous rather than rejecting the
// request.
func (s *Server) callerFrom(r *http.Request) model.Caller {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || s.Verifier == nil {
		return model.Anonymous()
	}
	userID, ok := s.Verifier.VerifyToken(strings.TrimSpace(token))
	if !ok {
		return model.Anonymous()
	}
	return model.Caller{UserID: userID}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, chat.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, chat.ErrBadImage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func listLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

func wantsStream(v string) bool {
	return v == "true" || v == "1"
}

func readJSON(r *http.Request, dst any) error {
	const maxBytes = 16 << 20
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return fmt.Errorf("failed reading request body: %v", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		b = []byte("{}")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"detail":"failed to marshal json"}`))
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
