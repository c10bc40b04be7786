package stream

import (
	"context"
	"sync"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Tracker remembers which Session is current. Starting a new one abandons the
// previous session, cancelling its request and dropping its remaining chunks.
type Tracker struct {
	mu      sync.Mutex
	current *Session
}

// Begin starts a session and returns a context bound to its lifetime.
func (t *Tracker) Begin(ctx context.Context, mode Mode, kind types.Kind) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s := NewSession(mode, kind)
	s.cancel = cancel

	t.mu.Lock()
	prev := t.current
	t.current = s
	t.mu.Unlock()

	if prev != nil {
		prev.abandon()
	}
	return s, ctx
}

// Current is the most recently begun session, or nil.
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IsCurrent reports whether s is still the current session.
func (t *Tracker) IsCurrent(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current == s
}

// Deliver applies a chunk from a push-style source. It reports false when the
// chunk was dropped because s is stale or finished.
func (t *Tracker) Deliver(s *Session, chunk string) bool {
	if !t.IsCurrent(s) {
		return false
	}
	return s.appendChunk(chunk)
}

// Finish releases s if it is still current and frees its context.
func (t *Tracker) Finish(s *Session) {
	t.mu.Lock()
	if t.current == s {
		t.current = nil
	}
	t.mu.Unlock()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Abandon abandons the current session, if any.
func (t *Tracker) Abandon() {
	t.mu.Lock()
	prev := t.current
	t.current = nil
	t.mu.Unlock()
	if prev != nil {
		prev.abandon()
	}
}
