package types

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role tags a chat message author.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Mode is the persona a chat session was opened with.
type Mode string

const (
	ModeInvestor  Mode = "investor"
	ModeMarket    Mode = "market"
	ModeMVP       Mode = "mvp"
	ModeFinancial Mode = "financial"
	ModePivot     Mode = "pivot"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeInvestor, ModeMarket, ModeMVP, ModeFinancial, ModePivot:
		return true
	}
	return false
}

// Session is one persisted chat conversation.
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Title     string    `json:"title" yaml:"title"`
	Mode      Mode      `json:"mode" yaml:"mode"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Message is one turn of a chat session.
type Message struct {
	ID        int64     `json:"id" yaml:"-"`
	SessionID string    `json:"session_id" yaml:"-"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Profile is the account record the admin surface manages.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is one recorded model call.
type Usage struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageSummary aggregates usage per endpoint.
type UsageSummary struct {
	Endpoint   string `json:"endpoint"`
	Calls      int    `json:"calls"`
	TokensUsed int    `json:"tokens_used"`
}

// Turn is one entry of the conversation history sent for follow-ups.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// Text joins all parts of the turn.
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var n int
	for _, p := range t.Parts {
		n += len(p.Text)
	}
	buf := make([]byte, 0, n)
	for _, p := range t.Parts {
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// NewTurn builds a single-part turn.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// DefaultSessionTitle names a session whose first message is empty.
const DefaultSessionTitle = "New Chat"

// SessionTitle derives a session title from the first 50 characters of the
// opening user message.
func SessionTitle(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultSessionTitle
	}
	if utf8.RuneCountInString(content) <= 50 {
		return content
	}
	return string([]rune(content)[:50])
}
