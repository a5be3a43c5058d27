package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/engine"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

func TestFormatToolCall(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     string
		expected string
	}{
		{name: "run_query", tool: "run_query", args: `{"query":"SELECT COUNT(*) FROM orders"}`, expected: `Running query "SELECT COUNT(*) FROM orders"`},
		{name: "describe_tables", tool: "describe_tables", args: `{"table_names":["users","orders"]}`, expected: "Describing users, orders"},
		{name: "list_tables", tool: "list_tables", args: `{}`, expected: "Listing tables"},
		{name: "write_report", tool: "write_report", args: `{"filename":"out.html","html":"<p/>"}`, expected: `Writing report "out.html"`},
		{name: "mcp with args", tool: "search", args: `{"q":"x"}`, expected: `Calling search {"q":"x"}`},
		{name: "mcp empty args", tool: "ping", args: `{}`, expected: "Calling ping"},
		{name: "mcp no args", tool: "ping", args: "", expected: "Calling ping"},
		{name: "malformed args", tool: "run_query", args: `{not json`, expected: `Running query ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatToolCall(tt.tool, tt.args))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel...", truncate("hello world", 3))
	assert.Equal(t, "hello world", truncate("hello\nworld", 20))
	assert.Empty(t, truncate("", 5))
}

func TestRenderEvent(t *testing.T) {
	start := renderEvent(engine.Event{
		Kind: engine.EventToolCallStart,
		Data: &content.ToolCall{Name: "list_tables", Arguments: `{}`},
	})
	assert.Contains(t, start, "Listing tables")

	end := renderEvent(engine.Event{
		Kind: engine.EventToolCallEnd,
		Data: &content.ToolResult{Content: `["orders"]`},
	})
	assert.Contains(t, end, `["orders"]`)
	assert.Contains(t, end, treeCorner)

	failed := renderEvent(engine.Event{
		Kind: engine.EventToolCallEnd,
		Data: &content.ToolResult{Content: "boom", IsError: true},
	})
	assert.Contains(t, failed, "boom")

	assert.Empty(t, renderEvent(engine.Event{Kind: engine.EventAgentStart}))
}

func TestRenderMessage(t *testing.T) {
	assert.Contains(t, renderMessage(message.NewUser("how many?")), "how many?")
	assert.Contains(t, renderMessage(message.NewAssistant("bot", "three", nil)), "three")

	call := renderMessage(message.NewAssistant("bot", "", &content.ToolCall{Name: "list_tables", Arguments: `{}`}))
	assert.Contains(t, call, "Listing tables")

	result := renderMessage(message.NewToolResult("list_tables", content.ToolResult{Content: `["orders"]`}))
	assert.Contains(t, result, `["orders"]`)
}

func TestRenderDescriptor(t *testing.T) {
	out := renderDescriptor(toolbox.Descriptor{
		Name:        "run_query",
		Description: "Run a query",
		Schema: toolbox.Schema{
			{Name: "query", Type: toolbox.TypeString, Required: true, Description: "SQL"},
		},
	})

	assert.Contains(t, out, "run_query")
	assert.Contains(t, out, "Run a query")
	assert.Contains(t, out, "query (string, required) SQL")
}

func TestRenderErrorAndWarning(t *testing.T) {
	assert.Contains(t, renderError(errors.New("boom")), "error: boom")
	assert.Contains(t, renderWarning(errors.New("disk full")), "warning: disk full")
}

func TestRenderMarkdown(t *testing.T) {
	t.Cleanup(func() { mdRenderer = nil })

	answer := "# Orders\n\n- three orders\n- two users"

	mdRenderer = nil
	assert.Equal(t, answer, renderMarkdown(answer), "plain text without a renderer")

	mdRenderer = newMarkdownRenderer(80, "dark")
	if !assert.NotNil(t, mdRenderer) {
		return
	}
	out := renderMarkdown(answer)
	assert.NotEqual(t, answer, out)
	assert.Contains(t, out, "Orders")
	assert.Contains(t, out, "three")
	assert.Contains(t, out, "users")
	assert.NotContains(t, out, "# Orders")

	assert.Contains(t, renderAnswer(answer), "tabletalk >")
}

func TestInitMarkdownRendererSkipsNonTerminal(t *testing.T) {
	t.Cleanup(func() { mdRenderer = nil })

	mdRenderer = newMarkdownRenderer(80, "dark")
	initMarkdownRenderer(&bytes.Buffer{})
	assert.Nil(t, mdRenderer)
}

func TestRenderSession(t *testing.T) {
	out := renderSession(memory.SessionInfo{ID: "sales", Messages: 4})
	assert.Contains(t, out, "sales")
	assert.Contains(t, out, "4 messages")
}
