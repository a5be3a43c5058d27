package message

import (
	"encoding/json"
	"fmt"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/role"
)

type wireMessage struct {
	Sender   string         `json:"sender,omitempty"`
	Role     string         `json:"role"`
	Parts    []wirePart     `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type wirePart struct {
	Kind       string `json:"kind"`
	Text       string `json:"text,omitempty"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// MarshalJSON encodes the message with an explicit kind per part.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Sender:   m.Sender,
		Role:     m.Role.String(),
		Parts:    make([]wirePart, 0, len(m.Parts)),
		Metadata: m.Metadata,
	}

	for _, p := range m.Parts {
		switch v := p.(type) {
		case content.Text:
			w.Parts = append(w.Parts, wirePart{Kind: content.KindText, Text: v.Text})
		case content.ToolCall:
			w.Parts = append(w.Parts, wirePart{
				Kind:      content.KindToolCall,
				ID:        v.ID,
				Name:      v.Name,
				Arguments: v.Arguments,
			})
		case content.ToolResult:
			w.Parts = append(w.Parts, wirePart{
				Kind:       content.KindToolResult,
				ToolCallID: v.ToolCallID,
				Name:       v.Name,
				Content:    v.Content,
				IsError:    v.IsError,
			})
		default:
			return nil, fmt.Errorf("message: unsupported part kind %q", p.PartKind())
		}
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a message produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("message: decode: %w", err)
	}

	r, err := role.Parse(w.Role)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}

	parts := make([]content.Part, 0, len(w.Parts))
	for _, p := range w.Parts {
		switch p.Kind {
		case content.KindText:
			parts = append(parts, content.Text{Text: p.Text})
		case content.KindToolCall:
			parts = append(parts, content.ToolCall{ID: p.ID, Name: p.Name, Arguments: p.Arguments})
		case content.KindToolResult:
			parts = append(parts, content.ToolResult{
				ToolCallID: p.ToolCallID,
				Name:       p.Name,
				Content:    p.Content,
				IsError:    p.IsError,
			})
		default:
			return fmt.Errorf("message: unknown part kind %q", p.Kind)
		}
	}

	*m = Message{
		Sender:   w.Sender,
		Role:     r,
		Parts:    parts,
		Metadata: w.Metadata,
	}

	return nil
}

// Marshal encodes a message for storage.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a stored message.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
