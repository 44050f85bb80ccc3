package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"clron/model"
	"clron/provider/testutil"
)

// stubStore is an in-memory HistoryStore capturing appended turns.
// When appendErrOn is set, only that append (1-based) fails; zero
// means every append fails once appendErr is set.
type stubStore struct {
	turns       []model.Turn
	history     []model.Turn
	historyErr  error
	appendErr   error
	appendErrOn int
	nextID      string
}

func (s *stubStore) Append(userID string, turn model.Turn) (string, error) {
	if s.appendErr != nil && (s.appendErrOn == 0 || len(s.turns)+1 == s.appendErrOn) {
		return "", s.appendErr
	}
	id := turn.ChatID
	if id == "" {
		id = s.nextID
	}
	turn.ChatID = id
	s.turns = append(s.turns, turn)
	return id, nil
}

func (s *stubStore) Messages(userID, chatID string, limit int) ([]model.Turn, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.history, nil
}

type stubBlobs struct {
	url string
	err error
}

func (s *stubBlobs) Put(userID string, data []byte, mimeType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func dataURI(mimeType, payload string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestTurnBuffered(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	mock.CompleteFunc = func(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
		return &model.Completion{Content: "The answer.", MessageID: "m1"}, nil
	}
	store := &stubStore{nextID: "chat_100"}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	resp, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{Message: "A question?"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if resp.Content != "The answer." {
		t.Errorf("Content = %q, want %q", resp.Content, "The answer.")
	}
	if resp.ChatID != "chat_100" {
		t.Errorf("ChatID = %q, want chat_100", resp.ChatID)
	}

	// Both sides of the exchange stored under one chat id.
	if len(store.turns) != 2 {
		t.Fatalf("stored %d turns, want 2", len(store.turns))
	}
	if store.turns[0].Role != model.RoleUser || store.turns[0].Content != "A question?" {
		t.Errorf("user turn = %+v", store.turns[0])
	}
	if store.turns[1].Role != model.RoleAssistant || store.turns[1].Content != "The answer." {
		t.Errorf("assistant turn = %+v", store.turns[1])
	}
	if store.turns[0].ChatID != "chat_100" || store.turns[1].ChatID != "chat_100" {
		t.Errorf("turns stored under %q and %q, want one id", store.turns[0].ChatID, store.turns[1].ChatID)
	}
}

func TestTurnNoProvider(t *testing.T) {
	o := NewOrchestrator(Config{Store: &stubStore{}})

	_, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{Message: "hello"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Turn() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestTurnProviderFailure(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	mock.CompleteFunc = func(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
		return nil, errors.New("remote refused")
	}
	store := &stubStore{nextID: "chat_1"}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	_, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{Message: "hello"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Turn() error = %v, want *ProviderError", err)
	}
	if len(store.turns) != 0 {
		t.Errorf("failed turn stored %d turns, want 0", len(store.turns))
	}
}

func TestTurnAssistantWriteFailureStillResponds(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{
		nextID:      "chat_5",
		appendErr:   errors.New("disk full"),
		appendErrOn: 2,
	}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	resp, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Turn() error = %v, want degraded success", err)
	}
	if resp.Content != "Mock response" {
		t.Errorf("Content = %q, want the provider response", resp.Content)
	}
	if resp.ChatID != "chat_5" {
		t.Errorf("ChatID = %q, want the id the user turn landed under", resp.ChatID)
	}
	if len(store.turns) != 1 {
		t.Errorf("stored %d turns, want the user turn only", len(store.turns))
	}
}

func TestTurnAnonymousNotPersisted(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{nextID: "chat_1"}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	resp, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if resp.ChatID != "" {
		t.Errorf("anonymous turn got chat id %q, want none", resp.ChatID)
	}
	if len(store.turns) != 0 {
		t.Errorf("anonymous turn stored %d turns, want 0", len(store.turns))
	}
}

func TestTurnRequestShape(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	o := NewOrchestrator(Config{Provider: mock})

	_, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{
		Message:   "what is in this picture?",
		ImageData: dataURI("image/png", "fake image bytes"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if len(mock.Requests) != 1 {
		t.Fatalf("provider saw %d requests, want 1", len(mock.Requests))
	}
	req := mock.Requests[0]
	if len(req.Blocks) != 2 {
		t.Fatalf("got %d blocks, want text + image", len(req.Blocks))
	}
	if req.Blocks[0].Type != model.BlockText || req.Blocks[0].Text != "what is in this picture?" {
		t.Errorf("first block = %+v, want the text block", req.Blocks[0])
	}
	if req.Blocks[1].Type != model.BlockImage || req.Blocks[1].MediaType != "image/png" {
		t.Errorf("second block = %+v, want the image block", req.Blocks[1])
	}
	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q, want default", req.SystemPrompt)
	}
}

func TestTurnEmptyMessageOmitsTextBlock(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	o := NewOrchestrator(Config{Provider: mock})

	_, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{
		ImageData: dataURI("image/jpeg", "fake image bytes"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	req := mock.Requests[0]
	if len(req.Blocks) != 1 {
		t.Fatalf("got %d blocks, want image only", len(req.Blocks))
	}
	if req.Blocks[0].Type != model.BlockImage {
		t.Errorf("block = %+v, want the image block", req.Blocks[0])
	}
}

func TestTurnSystemPromptPrecedence(t *testing.T) {
	tests := []struct {
		name          string
		requestPrompt string
		configPrompt  string
		want          string
	}{
		{"request wins", "from request", "from config", "from request"},
		{"config next", "", "from config", "from config"},
		{"default last", "", "", DefaultSystemPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockProvider("test-model")
			o := NewOrchestrator(Config{Provider: mock, DefaultSystemPrompt: tt.configPrompt})

			_, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{
				Message:      "hello",
				SystemPrompt: tt.requestPrompt,
			})
			if err != nil {
				t.Fatalf("Turn() error = %v", err)
			}
			if got := mock.Requests[0].SystemPrompt; got != tt.want {
				t.Errorf("SystemPrompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTurnMalformedImageDegrades(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	o := NewOrchestrator(Config{Provider: mock})

	resp, err := o.Turn(context.Background(), model.Anonymous(), TurnRequest{
		Message:   "hello",
		ImageData: "not a data uri",
	})
	if err != nil {
		t.Fatalf("Turn() error = %v, want degraded success", err)
	}
	if resp.ImageURL != "" {
		t.Errorf("ImageURL = %q, want none", resp.ImageURL)
	}
	if len(mock.Requests[0].Blocks) != 1 {
		t.Errorf("got %d blocks, want text only after image was dropped", len(mock.Requests[0].Blocks))
	}
}

func TestTurnImageUploadedForAuthenticated(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{nextID: "chat_1"}
	blobs := &stubBlobs{url: "/uploads/alice/img.png"}
	o := NewOrchestrator(Config{Provider: mock, Store: store, Blobs: blobs})

	resp, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{
		Message:   "look",
		ImageData: dataURI("image/png", "fake image bytes"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if resp.ImageURL != "/uploads/alice/img.png" {
		t.Errorf("ImageURL = %q, want the uploaded URL", resp.ImageURL)
	}
	if store.turns[0].ImageURL != "/uploads/alice/img.png" {
		t.Errorf("user turn ImageURL = %q, want the uploaded URL", store.turns[0].ImageURL)
	}
}

func TestTurnUploadFailureDegrades(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{nextID: "chat_1"}
	blobs := &stubBlobs{err: errors.New("disk full")}
	o := NewOrchestrator(Config{Provider: mock, Store: store, Blobs: blobs})

	resp, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{
		Message:   "look",
		ImageData: dataURI("image/png", "fake image bytes"),
	})
	if err != nil {
		t.Fatalf("Turn() error = %v, want degraded success", err)
	}
	if resp.ImageURL != "" {
		t.Errorf("ImageURL = %q, want none after failed upload", resp.ImageURL)
	}
	// The image still reaches the provider.
	if len(mock.Requests[0].Blocks) != 2 {
		t.Errorf("got %d blocks, want text + image", len(mock.Requests[0].Blocks))
	}
}

func TestTurnHistoryForwarded(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{
		nextID: "chat_1",
		history: []model.Turn{
			{Role: model.RoleUser, Content: "earlier question"},
			{Role: model.RoleAssistant, Content: "earlier answer"},
		},
	}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	_, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{
		Message: "follow-up",
		ChatID:  "chat_1",
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if len(mock.Requests[0].History) != 2 {
		t.Errorf("provider saw %d history turns, want 2", len(mock.Requests[0].History))
	}
}

func TestTurnHistoryFailureDegrades(t *testing.T) {
	mock := testutil.NewMockProvider("test-model")
	store := &stubStore{nextID: "chat_1", historyErr: errors.New("db locked")}
	o := NewOrchestrator(Config{Provider: mock, Store: store})

	_, err := o.Turn(context.Background(), model.Caller{UserID: "alice"}, TurnRequest{
		Message: "follow-up",
		ChatID:  "chat_1",
	})
	if err != nil {
		t.Fatalf("Turn() error = %v, want degraded success", err)
	}
	if len(mock.Requests[0].History) != 0 {
		t.Errorf("provider saw %d history turns, want 0", len(mock.Requests[0].History))
	}
}
