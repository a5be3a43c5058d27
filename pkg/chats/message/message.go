// Package message defines the transcript message type and its JSON encoding.
package message

import (
	"strings"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/role"
)

// Message is a single conversation entry. Which parts it carries depends on
// the role: system and user messages hold text, assistant messages hold text
// and optionally tool calls, tool messages hold exactly one tool result.
type Message struct {
	Sender   string
	Role     role.Role
	Parts    []content.Part
	Metadata map[string]any
}

// New creates a Message with the given sender, role and parts.
func New(sender string, r role.Role, parts ...content.Part) Message {
	return Message{
		Sender: sender,
		Role:   r,
		Parts:  parts,
	}
}

// NewText creates a Message holding a single text part.
func NewText(sender string, r role.Role, text string) Message {
	return New(sender, r, content.Text{Text: text})
}

// NewSystem creates the system instruction message.
func NewSystem(text string) Message {
	return NewText("system", role.System, text)
}

// NewUser creates a user message.
func NewUser(text string) Message {
	return NewText("user", role.User, text)
}

// NewAssistant creates an assistant message. A nil call produces a final
// answer; a non-nil call defers the answer until the tool result arrives.
func NewAssistant(sender, text string, call *content.ToolCall) Message {
	var parts []content.Part
	if text != "" {
		parts = append(parts, content.Text{Text: text})
	}
	if call != nil {
		parts = append(parts, *call)
	}
	return New(sender, role.Assistant, parts...)
}

// NewToolResult creates the tool message answering a tool call.
func NewToolResult(sender string, result content.ToolResult) Message {
	return New(sender, role.Tool, result)
}

// TextContent returns the concatenation of all text parts.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls carried by the message, in order.
func (m Message) ToolCalls() []content.ToolCall {
	var calls []content.ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(content.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// HasToolCalls reports whether the message is an assistant reply that
// requests at least one tool invocation.
func (m Message) HasToolCalls() bool {
	if m.Role != role.Assistant {
		return false
	}
	for _, p := range m.Parts {
		if _, ok := p.(content.ToolCall); ok {
			return true
		}
	}
	return false
}

// ToolResults returns the tool results carried by the message, in order.
func (m Message) ToolResults() []content.ToolResult {
	var results []content.ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(content.ToolResult); ok {
			results = append(results, tr)
		}
	}
	return results
}

// IsFinal reports whether m is an assistant reply without tool calls, i.e. a
// message that ends a run.
func (m Message) IsFinal() bool {
	return m.Role == role.Assistant && !m.HasToolCalls()
}

// SetMeta sets a metadata key, allocating the map on first use.
func (m *Message) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// GetMeta returns a metadata value and whether it was present.
func (m Message) GetMeta(key string) (any, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	v, ok := m.Metadata[key]
	return v, ok
}
