// Package provider adapts third-party model SDKs to the two calls the
// generator needs: a one-shot generation (optionally in JSON mode) and a
// streamed text generation.
//
// Every error a Provider returns is classified with apierr so callers can
// decide on retries without knowing which SDK produced it.
package provider

import (
	"context"
	"net/http"

	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Type identifies a provider implementation.
type Type string

const (
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
	TypeOllama    Type = "ollama"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    Type
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
	// HTTPClient is optional.
	HTTPClient *http.Client
}

// Message is one conversation turn.
type Message struct {
	Role    types.Role
	Content string
}

// Request is a provider-agnostic generation request. The attachment, if any,
// belongs to the last user message.
type Request struct {
	System      string
	Messages    []Message
	Attachment  *attachment.Attachment
	JSON        bool
	MaxTokens   int
	Temperature float64
}

// Response is a completed one-shot generation.
type Response struct {
	Text        string
	UsageTokens int
}

// Chunk is one streamed piece. The final chunk of a stream may carry only
// UsageTokens.
type Chunk struct {
	Text        string
	UsageTokens int
}

// StreamCallback receives chunks in arrival order. Returning an error stops
// the stream.
type StreamCallback func(Chunk) error

// Provider is implemented by every backend.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, fn StreamCallback) error
}

// HistoryMessages converts a follow-up history into provider messages.
func HistoryMessages(history []types.Turn) []Message {
	out := make([]Message, 0, len(history))
	for _, t := range history {
		out = append(out, Message{Role: t.Role, Content: t.Text()})
	}
	return out
}
