package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

func TestNewProviderTypes(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(Config{Type: TypeOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, DefaultOpenAIModel, p.Model())

	p, err = NewProvider(Config{Type: TypeAnthropic, APIKey: "k", Model: "claude-x"})
	require.NoError(t, err)
	assert.Equal(t, "claude-x", p.Model())

	p, err = NewProvider(Config{Type: TypeOllama})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = NewProvider(Config{Type: TypeOpenAI})
	assert.Error(t, err)
	_, err = NewProvider(Config{Type: "gemini-native"})
	assert.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cause := errors.New("upstream")
	cases := []struct {
		status int
		msg    string
		want   apierr.Kind
	}{
		{http.StatusUnauthorized, "bad key", apierr.AuthenticationFailure},
		{http.StatusBadRequest, "API_KEY_INVALID", apierr.AuthenticationFailure},
		{http.StatusTooManyRequests, "slow down", apierr.RateLimited},
		{http.StatusBadRequest, "Resource has been exhausted (e.g. check quota).", apierr.RateLimited},
		{http.StatusBadRequest, "Candidate was blocked due to SAFETY", apierr.SafetyRejection},
		{http.StatusBadRequest, "bad field", apierr.BadRequest},
		{http.StatusServiceUnavailable, "overloaded", apierr.TransientGenerationFailure},
		{http.StatusTeapot, "?", apierr.Internal},
	}
	for _, tc := range cases {
		got := apierr.KindOf(classifyStatus(tc.status, tc.msg, cause))
		assert.Equal(t, tc.want, got, "%d %s", tc.status, tc.msg)
	}
}

func TestClassifyTransportKeepsCancellation(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, classifyTransport(context.Canceled), context.Canceled)
	assert.Equal(t, apierr.TransientGenerationFailure, apierr.KindOf(classifyTransport(errors.New("dial tcp: refused"))))
}

func TestHistoryMessages(t *testing.T) {
	t.Parallel()

	msgs := HistoryMessages([]types.Turn{
		types.NewTurn(types.RoleUser, "idea"),
		{Role: types.RoleModel, Parts: []types.Part{{Text: "a"}, {Text: "b"}}},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: types.RoleModel, Content: "ab"}, msgs[1])
}

func newOpenAITestProvider(t *testing.T, h http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewOpenAIProvider(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)
	return p
}

func TestOpenAIGenerateJSONMode(t *testing.T) {
	t.Parallel()

	var got map[string]any
	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
		  "choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}],
		  "usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	})

	resp, err := p.Generate(context.Background(), Request{
		System:      "sys",
		Messages:    []Message{{Role: types.RoleUser, Content: "hello"}},
		JSON:        true,
		MaxTokens:   100,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, 7, resp.UsageTokens)

	assert.Equal(t, "test-model", got["model"])
	format, _ := got["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	msgs, _ := got["messages"].([]any)
	require.Len(t, msgs, 2)
}

func TestOpenAIGenerateMapsStatus(t *testing.T) {
	t.Parallel()

	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"API key not valid","type":"invalid_request_error"}}`)
	})
	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: types.RoleUser, Content: "x"}}})
	assert.True(t, errors.Is(err, apierr.ErrAuthentication), "%v", err)
}

func TestOpenAIStream(t *testing.T) {
	t.Parallel()

	p := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", text)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":3,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var text strings.Builder
	usage := 0
	err := p.Stream(context.Background(), Request{Messages: []Message{{Role: types.RoleUser, Content: "hi"}}}, func(c Chunk) error {
		text.WriteString(c.Text)
		if c.UsageTokens > 0 {
			usage = c.UsageTokens
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, 5, usage)
}
