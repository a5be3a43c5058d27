package agent

import (
	"errors"
	"fmt"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

var (
	// ErrMaxIterations is wrapped by MaxIterationsError.
	ErrMaxIterations = errors.New("agent: max iterations reached")

	// ErrPendingToolCall is returned by Resume when the transcript ends with
	// a tool call that has no result. Dispatching it again could repeat a
	// side effect, so the caller has to decide.
	ErrPendingToolCall = errors.New("agent: transcript ends with an unanswered tool call")

	// ErrEmptyTranscript is returned by Resume for a transcript with nothing
	// to continue from.
	ErrEmptyTranscript = errors.New("agent: nothing to resume")
)

// MaxIterationsError is returned when the model keeps requesting tools past
// the iteration cap. Transcript holds everything produced up to that point.
type MaxIterationsError struct {
	Limit      int
	Transcript []message.Message
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("agent: no final answer after %d model calls", e.Limit)
}

func (e *MaxIterationsError) Unwrap() error { return ErrMaxIterations }

// PersistenceError reports a failed session store operation.
type PersistenceError struct {
	Op        string // "load" or "append"
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("agent: session %q: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
