package agent

import (
	"context"

	"github.com/germanamz/tabletalk/pkg/chats/content"
)

// EventKind names a point in a run.
type EventKind string

// Event kinds, in the order they occur within a run.
const (
	EventRunStart       EventKind = "agent_start"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventRunEnd         EventKind = "agent_end"
	EventError          EventKind = "error"
	EventPersistWarning EventKind = "persist_warning"
)

// Event describes something that happened during a run. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Agent     string
	SessionID string
	Iteration int
	Call      *content.ToolCall
	Result    *content.ToolResult
	Answer    string
	Err       error
}

// Observer receives run events synchronously, in order. It must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }
