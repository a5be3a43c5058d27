package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/germanamz/tabletalk/pkg/agent"
	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// Session is one conversation with the agent. Its history lives in the
// engine's session store, keyed by ID. Only one Send call may be active at a
// time.
type Session struct {
	id     string
	engine *Engine

	mu     sync.Mutex
	active bool
}

func newSession(id string, e *Engine) *Session {
	return &Session{id: id, engine: e}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Send runs one turn with text as the user message and returns the outcome.
// Only one Send may be active per session.
func (s *Session) Send(ctx context.Context, text string) (agent.Result, error) {
	if err := s.acquire(); err != nil {
		return agent.Result{}, err
	}
	defer s.release()

	return s.engine.agent.Run(ctx, s.id, text)
}

// History returns the persisted messages of the session.
func (s *Session) History(ctx context.Context) ([]message.Message, error) {
	return s.engine.History(ctx, s.id)
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("engine: session %s: another Send is already active", s.id)
	}
	s.active = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}
