package message

import (
	"testing"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText(t *testing.T) {
	msg := NewText("bob", role.Assistant, "hi there")

	assert.Equal(t, "bob", msg.Sender)
	assert.Equal(t, role.Assistant, msg.Role)
	assert.Len(t, msg.Parts, 1)
	assert.Equal(t, "hi there", msg.Parts[0].(content.Text).Text)
}

func TestNewAssistant_Final(t *testing.T) {
	msg := NewAssistant("bot", "1500 orders", nil)

	assert.True(t, msg.IsFinal())
	assert.False(t, msg.HasToolCalls())
	assert.Equal(t, "1500 orders", msg.TextContent())
}

func TestNewAssistant_ToolCall(t *testing.T) {
	call := content.ToolCall{ID: "c1", Name: "run_query", Arguments: `{"query":"SELECT 1"}`}
	msg := NewAssistant("bot", "", &call)

	assert.False(t, msg.IsFinal())
	assert.True(t, msg.HasToolCalls())
	assert.Equal(t, []content.ToolCall{call}, msg.ToolCalls())
	assert.Empty(t, msg.TextContent())
}

func TestHasToolCalls_OnlyAssistant(t *testing.T) {
	// A tool call part on a non-assistant message does not request dispatch.
	msg := New("user", role.User, content.ToolCall{Name: "x"})
	assert.False(t, msg.HasToolCalls())
	assert.False(t, msg.IsFinal())
}

func TestMessage_TextContent(t *testing.T) {
	msg := New("alice", role.User,
		content.Text{Text: "hello "},
		content.ToolCall{Name: "ignored"},
		content.Text{Text: "world"},
	)

	assert.Equal(t, "hello world", msg.TextContent())
}

func TestMessage_ToolResults(t *testing.T) {
	tr := content.ToolResult{ToolCallID: "c1", Name: "run_query", Content: "[[1500]]"}
	msg := NewToolResult("bot", tr)

	assert.Equal(t, role.Tool, msg.Role)
	assert.Equal(t, []content.ToolResult{tr}, msg.ToolResults())
}

func TestMessage_SetMeta_GetMeta(t *testing.T) {
	msg := NewUser("hello")

	_, ok := msg.GetMeta("model")
	assert.False(t, ok)

	msg.SetMeta("model", "gpt-4o")
	msg.SetMeta("model", "gpt-4.1")

	v, ok := msg.GetMeta("model")
	assert.True(t, ok)
	assert.Equal(t, "gpt-4.1", v)
}

func TestCodec_PreservesParts(t *testing.T) {
	call := content.ToolCall{ID: "c1", Name: "write_report", Arguments: `{"filename":"r.html","html":"<h1>x</h1>"}`}
	msgs := []Message{
		NewUser("How many orders are there?"),
		NewAssistant("bot", "Writing the report.", &call),
		NewToolResult("bot", content.ToolResult{ToolCallID: "c1", Name: "write_report", Content: "disk full", IsError: true}),
		NewAssistant("bot", "Done.", nil),
	}

	for _, m := range msgs {
		data, err := Marshal(m)
		require.NoError(t, err)

		got, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestCodec_Wire(t *testing.T) {
	call := content.ToolCall{ID: "c1", Name: "run_query", Arguments: `{"query":"SELECT 1"}`}
	data, err := Marshal(NewAssistant("bot", "", &call))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"sender": "bot",
		"role": "assistant",
		"parts": [{"kind":"tool_call","id":"c1","name":"run_query","arguments":"{\"query\":\"SELECT 1\"}"}]
	}`, string(data))
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := Unmarshal([]byte(`{"role":"wizard","parts":[]}`))
	assert.ErrorContains(t, err, "unknown role")

	_, err = Unmarshal([]byte(`{"role":"user","parts":[{"kind":"image"}]}`))
	assert.ErrorContains(t, err, `unknown part kind "image"`)

	_, err = Unmarshal([]byte(`not json`))
	assert.Error(t, err)
}
