package testutil

import (
	"context"

	"clron/model"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	// Configurable responses
	CompleteFunc func(ctx context.Context, req model.CompletionRequest) (*model.Completion, error)
	StreamFunc   func(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error
	PingFunc     func(ctx context.Context) error

	// State
	currentModel string

	// Captured requests, newest last
	Requests []model.CompletionRequest
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.CompleteFunc = mock.defaultComplete
	mock.StreamFunc = mock.defaultStream
	mock.PingFunc = mock.defaultPing
	return mock
}

func (m *MockProvider) defaultComplete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	return &model.Completion{
		Content:   "Mock response",
		MessageID: "mock-message-id",
		Model:     m.currentModel,
	}, nil
}

func (m *MockProvider) defaultStream(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
	return callback("Mock response")
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	m.Requests = append(m.Requests, req)
	return m.CompleteFunc(ctx, req)
}

func (m *MockProvider) Stream(ctx context.Context, req model.CompletionRequest, callback model.StreamCallback) error {
	m.Requests = append(m.Requests, req)
	return m.StreamFunc(ctx, req, callback)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
