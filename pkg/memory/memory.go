// Package memory persists conversation history per session so a later turn
// can be hydrated with what was said before.
//
// Every backend stores messages as message.Marshal JSON, skips system
// messages, keeps append order, and never rewrites earlier entries.
package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// ErrInvalidSessionID is returned for an empty session ID.
var ErrInvalidSessionID = errors.New("memory: invalid session id")

// ErrListUnsupported is returned when a store cannot enumerate its sessions.
var ErrListUnsupported = errors.New("memory: store cannot list sessions")

// Store is session memory keyed by session ID.
type Store interface {
	// Load returns the persisted messages of a session in append order. An
	// unknown session yields an empty slice.
	Load(ctx context.Context, sessionID string) ([]message.Message, error)
	// Append persists msgs after the existing messages of the session.
	Append(ctx context.Context, sessionID string, msgs ...message.Message) error
}

// Lister is implemented by stores that can enumerate their sessions.
type Lister interface {
	// Sessions returns the stored sessions ordered by ID.
	Sessions(ctx context.Context) ([]SessionInfo, error)
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID       string `db:"session_id"`
	Messages int    `db:"messages"`
	LastSeq  int64  `db:"last_seq"`
}

// persistable drops system messages, which are rebuilt from configuration on
// every run.
func persistable(msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role.Persisted() {
			out = append(out, m)
		}
	}
	return out
}

func checkSession(sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	return nil
}

// encodeAll marshals msgs for storage.
func encodeAll(msgs []message.Message) ([][]byte, error) {
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		data, err := message.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("memory: encode message %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}

func decode(sessionID string, i int, data []byte) (message.Message, error) {
	m, err := message.Unmarshal(data)
	if err != nil {
		return message.Message{}, fmt.Errorf("memory: session %q: decode message %d: %w", sessionID, i, err)
	}
	return m, nil
}
