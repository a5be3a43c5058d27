package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// InProcess keeps sessions in memory for the lifetime of the process. The
// zero value is ready to use.
type InProcess struct {
	mu       sync.RWMutex
	once     sync.Once
	sessions map[string][][]byte
}

// NewInProcess creates an empty in-process store.
func NewInProcess() *InProcess {
	return &InProcess{}
}

func (s *InProcess) init() {
	s.once.Do(func() {
		s.sessions = make(map[string][][]byte)
	})
}

// Load implements Store. Messages are decoded from their stored encoding so
// callers never share state with the store.
func (s *InProcess) Load(_ context.Context, sessionID string) ([]message.Message, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}
	s.init()

	s.mu.RLock()
	stored := s.sessions[sessionID]
	s.mu.RUnlock()

	msgs := make([]message.Message, 0, len(stored))
	for i, data := range stored {
		m, err := decode(sessionID, i, data)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Append implements Store.
func (s *InProcess) Append(_ context.Context, sessionID string, msgs ...message.Message) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}
	s.init()

	encoded, err := encodeAll(persistable(msgs))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], encoded...)
	return nil
}

// Sessions implements Lister.
func (s *InProcess) Sessions(_ context.Context) ([]SessionInfo, error) {
	s.init()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for id, msgs := range s.sessions {
		if len(msgs) > 0 {
			out = append(out, SessionInfo{ID: id, Messages: len(msgs), LastSeq: int64(len(msgs))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
