package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/config"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/provider"
	"github.com/psu6810110402/gemini-foundry/internal/provider/testutil"
	"github.com/psu6810110402/gemini-foundry/internal/retry"
	"github.com/psu6810110402/gemini-foundry/internal/server"
	"github.com/psu6810110402/gemini-foundry/internal/store"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// newFoundry runs the real HTTP service over a scripted provider.
func newFoundry(t *testing.T) (*Client, *testutil.MockProvider) {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Store.Path = filepath.Join(t.TempDir(), "foundry.db")

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mock := testutil.NewMockProvider("mock-model")
	gen, err := generator.NewService(mock, generator.Options{
		Policy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)
	srv, err := server.New(cfg, st, gen)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, "", nil), mock
}

func TestServerErrorKindsReachClient(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    apierr.Kind
		message string
	}{
		{
			name:    "bad provider key",
			err:     apierr.New(apierr.AuthenticationFailure, "401 from provider"),
			kind:    apierr.AuthenticationFailure,
			message: "Invalid API Key. Please check your model provider configuration.",
		},
		{
			name:    "safety block",
			err:     apierr.New(apierr.SafetyRejection, "blocked by safety filter"),
			kind:    apierr.SafetyRejection,
			message: "Response blocked by AI Safety Filter. Try rephrasing your input.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newFoundry(t)
			mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
				return provider.Response{}, tt.err
			}
			cv, err := c.Conversation(types.KindInvestor)
			require.NoError(t, err)

			_, err = cv.Send(context.Background(), Input{Text: "Uber for cats"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apierr.KindOf(err))
			assert.False(t, apierr.IsRetryable(err))
			assert.Equal(t, tt.message, apierr.UserMessage(err))
			assert.Len(t, mock.Requests(), 1, "terminal errors are not retried")
		})
	}
}

func TestServerStreamErrorKindReachesClient(t *testing.T) {
	c, mock := newFoundry(t)
	mock.GenerateFunc = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{Text: investorJSON, UsageTokens: 3}, nil
	}
	mock.StreamFunc = func(context.Context, provider.Request, provider.StreamCallback) error {
		return apierr.New(apierr.AuthenticationFailure, "401 from provider")
	}
	cv, err := c.Conversation(types.KindInvestor)
	require.NoError(t, err)
	_, err = cv.Send(context.Background(), Input{Text: "Uber for cats"}, nil)
	require.NoError(t, err)

	_, err = cv.Send(context.Background(), Input{Text: "what about churn?"}, nil)
	require.Error(t, err)
	assert.Equal(t, apierr.AuthenticationFailure, apierr.KindOf(err))
	assert.Len(t, cv.History(), 2)
}
