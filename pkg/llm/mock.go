package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is an in-memory Provider for tests. Every request is recorded
// before dispatch so tests can assert on the model and credential each call
// carried, which is how rotation behavior gets verified without a backend.
type MockProvider struct {
	// Response is returned verbatim when no ChatFunc is set.
	Response string
	// Err, when set, fails every call.
	Err error
	// ChatFunc, when set, handles the call entirely.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	completion := len(m.Response) / 4
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// Keys returns the APIKey carried by each request, in call order.
func (m *MockProvider) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.requests))
	for i, req := range m.requests {
		keys[i] = req.APIKey
	}
	return keys
}

// CallCount returns how many calls the provider has received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}
