// Package content defines the parts a transcript message is built from.
package content

// Part is a piece of content within a message.
type Part interface {
	PartKind() string
}

// Part kinds, also used as the "kind" discriminator in the JSON encoding.
const (
	KindText       = "text"
	KindToolCall   = "tool_call"
	KindToolResult = "tool_result"
)

// Text is a plain text content part.
type Text struct {
	Text string
}

func (t Text) PartKind() string { return KindText }

// ToolCall represents an assistant's request to invoke a tool.
// Arguments holds the raw JSON object as produced by the model; it is
// validated by the toolbox, not here.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

func (tc ToolCall) PartKind() string { return KindToolCall }

// ToolResult holds the output of a dispatched tool call. Name repeats the
// tool name of the originating call so a transcript can be checked without
// looking back.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

func (tr ToolResult) PartKind() string { return KindToolResult }

// Answers reports whether tr is the result for tc.
func (tr ToolResult) Answers(tc ToolCall) bool {
	if tr.ToolCallID != "" && tc.ID != "" {
		return tr.ToolCallID == tc.ID
	}
	return tr.Name == tc.Name
}
