package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/psu6810110402/gemini-foundry/internal/export"
	"github.com/psu6810110402/gemini-foundry/internal/stream"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// SessionStore persists conversations through the server's session API.
type SessionStore struct {
	Client *Client
}

func (s *SessionStore) CreateSession(ctx context.Context, title string, mode types.Mode) (string, error) {
	var sess types.Session
	body := map[string]string{"title": title, "mode": string(mode)}
	if err := s.Client.call(ctx, http.MethodPost, "/api/sessions", body, &sess); err != nil {
		return "", err
	}
	if sess.ID == "" {
		return "", fmt.Errorf("create session: server returned no id")
	}
	return sess.ID, nil
}

func (s *SessionStore) InsertMessage(ctx context.Context, sessionID string, role types.Role, content string) error {
	body := map[string]string{"role": string(role), "content": content}
	return s.Client.call(ctx, http.MethodPost, sessionPath(sessionID, "messages"), body, nil)
}

// SessionDetail is a session with its messages in creation order.
type SessionDetail struct {
	Session  types.Session   `json:"session"`
	Messages []types.Message `json:"messages"`
}

func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out []types.Session
	if err := c.call(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	var out SessionDetail
	if err := c.call(ctx, http.MethodGet, sessionPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// Usage returns the caller's token usage per endpoint.
func (c *Client) Usage(ctx context.Context) ([]types.UsageSummary, error) {
	var out []types.UsageSummary
	if err := c.call(ctx, http.MethodGet, "/api/usage", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportSession downloads a transcript and returns the file name the server
// suggested together with its content.
func (c *Client) ExportSession(ctx context.Context, id string, format export.Format) (string, []byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, sessionPath(id, "export")+"?format="+url.QueryEscape(string(format)), nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", nil, stream.StatusError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}
	name := id + format.Extension()
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, data, nil
}

func sessionPath(id, tail string) string {
	p := "/api/sessions/" + url.PathEscape(id)
	if tail != "" {
		p += "/" + tail
	}
	return p
}
