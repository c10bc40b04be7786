// Package client drives persona conversations against a foundry server. It
// owns the client-side request throttle and consumes generation responses as
// they arrive.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/stream"
	"github.com/psu6810110402/gemini-foundry/internal/throttle"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

const maxResponseBytes = 8 << 20

var structuredPaths = map[types.Kind]string{
	types.KindInvestor:  "/api/investor-analysis",
	types.KindMarket:    "/api/market-synthesis",
	types.KindMVP:       "/api/mvp-blueprint",
	types.KindPivot:     "/api/pivot-strategy",
	types.KindFinancial: "/api/financial-outlook",
}

const (
	followUpPath = "/api/investor-followup"
	pivotPath    = "/api/pivot"
)

// Persistence records a conversation. Implementations must be safe for
// concurrent use.
type Persistence interface {
	CreateSession(ctx context.Context, title string, mode types.Mode) (string, error)
	InsertMessage(ctx context.Context, sessionID string, role types.Role, content string) error
}

// Client talks to one foundry server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Token is sent as a bearer token when set.
	Token string
	// Throttle gates every generation request; nil disables client-side
	// throttling.
	Throttle *throttle.Throttle
	// Store persists conversations; nil keeps them in memory only.
	Store  Persistence
	Logger *slog.Logger
}

// New returns a client for baseURL. When a token is given, conversations are
// persisted through the server's session API.
func New(baseURL, token string, th *throttle.Throttle) *Client {
	c := &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		Throttle: th,
	}
	if token != "" {
		c.Store = &SessionStore{Client: c}
	}
	return c
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, apierr.Wrap(apierr.TransientGenerationFailure, ctxErr, "request cancelled")
		}
		return nil, apierr.Wrap(apierr.TransientGenerationFailure, err, "cannot reach the server")
	}
	return resp, nil
}

// call sends a JSON request and decodes a JSON answer into out, if non-nil.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if resp.StatusCode == http.StatusTooManyRequests && c.Throttle != nil {
			c.Throttle.NotifyOverload()
		}
		return stream.StatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
