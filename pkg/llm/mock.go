package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a test double for LLMClient. Responses are returned in the
// order queued; Err, when set, is returned for every call.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	callIdx   int

	Err     error
	Prompts []string // prompts received, in order
}

// NewMockClient creates a mock that returns the given responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// GenerateResponse implements LLMClient.
func (m *MockClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)

	if m.Err != nil {
		return "", m.Err
	}
	if m.callIdx >= len(m.responses) {
		return "", fmt.Errorf("mock: no response queued for call %d", m.callIdx+1)
	}
	resp := m.responses[m.callIdx]
	m.callIdx++
	return resp, nil
}

// GetModel implements LLMClient.
func (m *MockClient) GetModel() string {
	return "mock-model"
}

// CallCount returns how many GenerateResponse calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

var _ LLMClient = (*MockClient)(nil)
