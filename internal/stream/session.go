// Package stream consumes generation responses. Structured responses are read
// whole and validated; incremental responses are read chunk by chunk into an
// append-only buffer.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Mode selects how a response body is consumed.
type Mode string

const (
	ModeStructured  Mode = "structured"
	ModeIncremental Mode = "incremental"
)

// Status is the lifecycle of a Session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrSuperseded marks a session abandoned because a newer request started.
var ErrSuperseded = errors.New("stream: superseded by a newer request")

// Session is one generation exchange. All accessors are safe for concurrent use.
type Session struct {
	ID   string
	Mode Mode
	// Kind is the expected document for structured sessions.
	Kind types.Kind

	mu        sync.Mutex
	buf       strings.Builder
	usage     int
	status    Status
	err       error
	abandoned bool
	analysis  types.Analysis
	cancel    context.CancelFunc
}

// NewSession returns a pending session not owned by any Tracker.
func NewSession(mode Mode, kind types.Kind) *Session {
	return &Session{ID: uuid.NewString(), Mode: mode, Kind: kind, status: StatusPending}
}

// Buffer is the text accumulated so far.
func (s *Session) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// UsageTokens is the last usage value the server reported, 0 if none.
func (s *Session) UsageTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err is the failure of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Analysis is the validated document of a completed structured session.
func (s *Session) Analysis() types.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

// Abandoned reports whether a newer session replaced this one.
func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

func (s *Session) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.status.Terminal() {
		return false
	}
	s.status = StatusStreaming
	return true
}

// appendChunk applies one fragment in arrival order. Fragments for abandoned or
// finished sessions are dropped.
func (s *Session) appendChunk(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.status.Terminal() {
		return false
	}
	s.status = StatusStreaming
	s.buf.WriteString(text)
	return true
}

// replace sets the whole buffer once, for structured sessions.
func (s *Session) replace(text string, a types.Analysis) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.status.Terminal() {
		return false
	}
	s.buf.Reset()
	s.buf.WriteString(text)
	s.analysis = a
	return true
}

func (s *Session) setUsage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.abandoned {
		s.usage = n
	}
}

func (s *Session) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.status.Terminal() {
		return false
	}
	s.status = StatusCompleted
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = StatusFailed
	s.err = err
}

func (s *Session) abandon() {
	s.mu.Lock()
	s.abandoned = true
	if !s.status.Terminal() {
		s.status = StatusFailed
		s.err = ErrSuperseded
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
