package engine

import (
	"context"
	"sync"
	"time"

	"github.com/germanamz/tabletalk/pkg/agent"
)

// EventKind identifies the type of engine event.
type EventKind string

const (
	EventAgentStart     EventKind = EventKind(agent.EventRunStart)
	EventToolCallStart  EventKind = EventKind(agent.EventToolCallStart)
	EventToolCallEnd    EventKind = EventKind(agent.EventToolCallEnd)
	EventAgentEnd       EventKind = EventKind(agent.EventRunEnd)
	EventError          EventKind = EventKind(agent.EventError)
	EventPersistWarning EventKind = EventKind(agent.EventPersistWarning)
)

// Event is an immutable notification of engine activity. Data carries the
// tool call (*content.ToolCall) on tool_call_start, the result
// (*content.ToolResult) on tool_call_end, the answer (string) on agent_end
// and the error on error and persist_warning.
type Event struct {
	Kind      EventKind
	SessionID string
	Agent     string
	Iteration int
	Timestamp time.Time
	Data      any
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is full
// the event is dropped for that subscriber to prevent slow consumers from
// stalling the agent loop.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Observe implements agent.Observer by republishing run events.
func (b *EventBus) Observe(_ context.Context, ev agent.Event) {
	out := Event{
		Kind:      EventKind(ev.Kind),
		SessionID: ev.SessionID,
		Agent:     ev.Agent,
		Iteration: ev.Iteration,
		Timestamp: time.Now(),
	}

	switch ev.Kind {
	case agent.EventToolCallStart:
		out.Data = ev.Call
	case agent.EventToolCallEnd:
		out.Data = ev.Result
	case agent.EventRunEnd:
		out.Data = ev.Answer
	case agent.EventError, agent.EventPersistWarning:
		out.Data = ev.Err
	}

	b.Publish(out)
}
