package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"clron/chat"
	"clron/model"
	"clron/provider/testutil"
	"clron/storage"
)

// stubVerifier recognizes a single static token.
type stubVerifier struct {
	token  string
	userID string
}

func (v stubVerifier) VerifyToken(token string) (string, bool) {
	if token == v.token {
		return v.userID, true
	}
	return "", false
}

func newTestServer(t *testing.T, provider model.Provider) (*Server, *storage.ChatStore) {
	t.Helper()
	store, err := storage.NewChatStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewChatStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	orchestrator := chat.NewOrchestrator(chat.Config{
		Provider: provider,
		Store:    store,
	})

	return &Server{
		Orchestrator: orchestrator,
		Store:        store,
		Verifier:     stubVerifier{token: "secret", userID: "alice"},
	}, store
}

func postJSON(t *testing.T, handler http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestChatBuffered(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	srv, store := newTestServer(t, mock)
	handler := srv.Handler()

	w := postJSON(t, handler, "/api/chat", "secret", map[string]any{"message": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp chat.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.Content != "Mock response" {
		t.Errorf("Content = %q, want the provider response", resp.Content)
	}
	if resp.ChatID == "" {
		t.Error("authenticated turn got no chat id")
	}

	turns, err := store.Messages("alice", resp.ChatID, 20)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("stored %d turns, want both sides of the exchange", len(turns))
	}
}

func TestChatAnonymous(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	srv, _ := newTestServer(t, mock)

	// An unrecognized token degrades to anonymous instead of failing.
	w := postJSON(t, srv.Handler(), "/api/chat", "wrong-token", map[string]any{"message": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp chat.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.ChatID != "" {
		t.Errorf("anonymous turn got chat id %q, want none", resp.ChatID)
	}
}

func TestChatNoProvider(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := postJSON(t, srv.Handler(), "/api/chat", "", map[string]any{"message": "hello"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestChatStreamFraming(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	mock.StreamFunc = func(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
		if err := callback("Hel"); err != nil {
			return err
		}
		return callback("lo")
	}
	srv, _ := newTestServer(t, mock)

	w := postJSON(t, srv.Handler(), "/api/chat/stream", "secret", map[string]any{"message": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	frames := parseSSE(t, w.Body.String())
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want metadata + 2 content + final + done:\n%s", len(frames), w.Body.String())
	}

	var meta struct {
		Type     string  `json:"type"`
		ChatID   *string `json:"chat_id"`
		ImageURL *string `json:"image_url"`
	}
	if err := json.Unmarshal([]byte(frames[0]), &meta); err != nil {
		t.Fatalf("metadata frame not json: %v", err)
	}
	if meta.Type != "metadata" {
		t.Errorf("first frame type = %q, want metadata", meta.Type)
	}
	// New conversation: the keys are present but null.
	if !strings.Contains(frames[0], `"chat_id":null`) || !strings.Contains(frames[0], `"image_url":null`) {
		t.Errorf("metadata frame missing null keys: %s", frames[0])
	}

	for i, want := range []string{"Hel", "lo"} {
		var content struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(frames[i+1]), &content); err != nil {
			t.Fatalf("content frame not json: %v", err)
		}
		if content.Type != "content" || content.Content != want {
			t.Errorf("frame %d = %+v, want content %q", i+1, content, want)
		}
	}

	var final struct {
		Type   string `json:"type"`
		ChatID string `json:"chat_id"`
	}
	if err := json.Unmarshal([]byte(frames[3]), &final); err != nil {
		t.Fatalf("final frame not json: %v", err)
	}
	if final.Type != "final" || final.ChatID == "" {
		t.Errorf("final frame = %+v, want a chat id", final)
	}

	if frames[4] != "[DONE]" {
		t.Errorf("terminal frame = %q, want [DONE]", frames[4])
	}
}

func TestChatStreamNoProvider(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := postJSON(t, srv.Handler(), "/api/chat/stream", "", map[string]any{"message": "hello"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want plain 503 before any event", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want a json error", ct)
	}
}

func TestChatUploadRejectsNonImage(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	srv, _ := newTestServer(t, mock)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="notes.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart() error = %v", err)
	}
	part.Write([]byte("just text"))
	mw.WriteField("message", "hello")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-image upload", w.Code)
	}
}

func TestChatUploadWithoutImage(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	srv, _ := newTestServer(t, mock)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("message", "text only")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(mock.Requests) != 1 || len(mock.Requests[0].Blocks) != 1 {
		t.Errorf("provider request = %+v, want a single text block", mock.Requests)
	}
}

func TestChatsRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, testutil.NewMockProvider("test-model"))

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for anonymous listing", w.Code)
	}
}

func TestChatsListingAndMessages(t *testing.T) {
	srv, store := newTestServer(t, testutil.NewMockProvider("test-model"))

	chatID, err := store.Append("alice", model.Turn{Role: model.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := store.Append("alice", model.Turn{
		Role: model.RoleAssistant, Content: "hi there", ChatID: chatID,
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}

	var listing struct {
		Chats []storage.ChatSummary `json:"chats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("invalid listing json: %v", err)
	}
	if len(listing.Chats) != 1 || listing.Chats[0].ChatID != chatID {
		t.Errorf("listing = %+v, want the one conversation", listing.Chats)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chats/"+chatID, nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d, want 200", w.Code)
	}

	var detail struct {
		ChatID   string       `json:"chat_id"`
		Messages []model.Turn `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("invalid messages json: %v", err)
	}
	if detail.ChatID != chatID || len(detail.Messages) != 2 {
		t.Errorf("detail = %+v, want both turns of %s", detail, chatID)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health json: %v", err)
	}
	if body.Status != "ok" || body.Version == "" {
		t.Errorf("health = %+v", body)
	}
}

// parseSSE splits a response body into its data frame payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		payload, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("malformed SSE chunk: %q", chunk)
		}
		frames = append(frames, payload)
	}
	return frames
}
