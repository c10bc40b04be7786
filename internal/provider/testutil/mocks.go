package testutil

import (
	"context"
	"sync"

	"github.com/psu6810110402/gemini-foundry/internal/provider"
)

// MockProvider implements provider.Provider for tests. Override the func
// fields to script responses; every request is recorded.
type MockProvider struct {
	GenerateFunc func(ctx context.Context, req provider.Request) (provider.Response, error)
	StreamFunc   func(ctx context.Context, req provider.Request, fn provider.StreamCallback) error

	mu       sync.Mutex
	requests []provider.Request
	model    string
}

// NewMockProvider creates a mock provider with default implementations.
func NewMockProvider(model string) *MockProvider {
	m := &MockProvider{model: model}
	m.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{Text: "{}", UsageTokens: 1}, nil
	}
	m.StreamFunc = func(ctx context.Context, req provider.Request, fn provider.StreamCallback) error {
		return fn(provider.Chunk{Text: "Mock response"})
	}
	return m
}

// StreamChunks scripts a stream that emits texts then reports usage.
func StreamChunks(usage int, texts ...string) func(context.Context, provider.Request, provider.StreamCallback) error {
	return func(ctx context.Context, _ provider.Request, fn provider.StreamCallback) error {
		for _, t := range texts {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(provider.Chunk{Text: t}); err != nil {
				return err
			}
		}
		if usage > 0 {
			return fn(provider.Chunk{UsageTokens: usage})
		}
		return nil
	}
}

func (m *MockProvider) Name() string  { return "mock" }
func (m *MockProvider) Model() string { return m.model }

func (m *MockProvider) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	m.record(req)
	return m.GenerateFunc(ctx, req)
}

func (m *MockProvider) Stream(ctx context.Context, req provider.Request, fn provider.StreamCallback) error {
	m.record(req)
	return m.StreamFunc(ctx, req, fn)
}

// Requests returns a copy of every request seen so far.
func (m *MockProvider) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Request(nil), m.requests...)
}

func (m *MockProvider) record(req provider.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}
