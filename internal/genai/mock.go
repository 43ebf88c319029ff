package genai

import (
	"context"
	"sync"
)

var _ Generator = (*MockGenerator)(nil)

// MockGenerator is a test double standing in for *Client wherever callers
// depend on a narrow generation interface rather than the concrete type.
type MockGenerator struct {
	mu sync.Mutex

	// Responses is consumed in order, one per call; Err takes precedence
	// over Result when set for a given call index. When exhausted, the
	// last entry is reused for all further calls.
	Responses []MockResponse
	calls     int
	Prompts   []string
}

// MockResponse is one scripted outcome for a single MockGenerator call.
type MockResponse struct {
	Result *GenerateResult
	Err    error
}

func (m *MockGenerator) Generate(_ context.Context, _ GenerateParams, prompt string, _ []HistoryTurn) (*GenerateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	if idx < 0 {
		return &GenerateResult{Text: ""}, nil
	}
	resp := m.Responses[idx]
	return resp.Result, resp.Err
}

// CallCount reports how many times Generate has been invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
