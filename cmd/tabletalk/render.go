package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
	"github.com/germanamz/tabletalk/pkg/engine"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue

	userPrefixStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	answerPrefixStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	answerBlockStyle  = lipgloss.NewStyle().PaddingLeft(1)

	toolNameStyle   = lipgloss.NewStyle().Bold(true)
	toolResultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // dim gray
	toolErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1"))
)

const (
	treeCorner = "└ "
	treePipe   = "│ "
)

// toolFormatter produces a human-readable label from parsed tool arguments.
type toolFormatter func(str func(string) string, args map[string]any) string

var toolFormatters = map[string]toolFormatter{
	"run_query": func(s func(string) string, _ map[string]any) string {
		return fmt.Sprintf("Running query %q", truncate(s("query"), 80))
	},
	"describe_tables": func(_ func(string) string, args map[string]any) string {
		return fmt.Sprintf("Describing %s", strings.Join(stringList(args["table_names"]), ", "))
	},
	"list_tables": func(_ func(string) string, _ map[string]any) string { return "Listing tables" },
	"write_report": func(s func(string) string, _ map[string]any) string {
		return fmt.Sprintf("Writing report %q", s("filename"))
	},
}

// formatToolCall returns a human-readable description of a tool invocation.
func formatToolCall(toolName, argsJSON string) string {
	var args map[string]any
	if argsJSON != "" {
		_ = json.Unmarshal([]byte(argsJSON), &args)
	}

	str := func(key string) string {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	if fn, ok := toolFormatters[toolName]; ok {
		return fn(str, args)
	}

	// MCP tools: show name + truncated args.
	if argsJSON != "" && argsJSON != "{}" {
		return fmt.Sprintf("Calling %s %s", toolName, truncate(argsJSON, 80))
	}
	return fmt.Sprintf("Calling %s", toolName)
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, a := range arr {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// truncate returns s shortened to at most n runes, with "..." appended if
// truncated. Newlines are replaced with spaces for single-line display.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// renderEvent formats tool activity; other events render as "".
func renderEvent(ev engine.Event) string {
	switch ev.Kind {
	case engine.EventToolCallStart:
		if tc, ok := ev.Data.(*content.ToolCall); ok {
			return toolNameStyle.Render(treePipe + formatToolCall(tc.Name, tc.Arguments))
		}
	case engine.EventToolCallEnd:
		if tr, ok := ev.Data.(*content.ToolResult); ok {
			if tr.IsError {
				return toolErrorStyle.Render(treeCorner + truncate(tr.Content, 120))
			}
			return toolResultStyle.Render(treeCorner + truncate(tr.Content, 120))
		}
	}
	return ""
}

// markdownWidth is the word-wrap width of rendered answers.
const markdownWidth = 100

// mdRenderer renders answers as Markdown. It stays nil when output is not a
// terminal, and answers are then printed as plain text.
var mdRenderer *glamour.TermRenderer

// initMarkdownRenderer enables Markdown rendering when out is a terminal.
func initMarkdownRenderer(out io.Writer) {
	mdRenderer = nil

	f, ok := out.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return
	}
	mdRenderer = newMarkdownRenderer(markdownWidth, "")
}

// newMarkdownRenderer builds a renderer with the named glamour style, or the
// style matching the terminal background when style is empty.
func newMarkdownRenderer(width int, style string) *glamour.TermRenderer {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}

	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown converts Markdown text to terminal output, falling back to
// the raw text.
func renderMarkdown(text string) string {
	if mdRenderer == nil {
		return text
	}
	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func renderAnswer(text string) string {
	if mdRenderer != nil {
		return answerPrefixStyle.Render("tabletalk >") + "\n" + renderMarkdown(text)
	}
	return answerBlockStyle.Render(answerPrefixStyle.Render("tabletalk > ") + text)
}

func renderError(err error) string {
	return errorBlockStyle.Render("error: " + err.Error())
}

func renderWarning(err error) string {
	return warnStyle.Render("warning: " + err.Error())
}

// renderDescriptor prints a tool with one line per parameter.
func renderDescriptor(d toolbox.Descriptor) string {
	var sb strings.Builder
	sb.WriteString(toolNameStyle.Render(d.Name))
	if d.Description != "" {
		sb.WriteString("  ")
		sb.WriteString(d.Description)
	}
	for _, f := range d.Schema {
		req := ""
		if f.Required {
			req = ", required"
		}
		sb.WriteString("\n  ")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%s (%s%s)", f.Name, f.Type, req)))
		if f.Description != "" {
			sb.WriteString(" ")
			sb.WriteString(f.Description)
		}
	}
	return sb.String()
}

func renderSession(s memory.SessionInfo) string {
	return toolNameStyle.Render(s.ID) + "  " + dimStyle.Render(fmt.Sprintf("%d messages", s.Messages))
}

// renderMessage formats a persisted message for the history command.
func renderMessage(m message.Message) string {
	switch m.Role {
	case role.User:
		return userPrefixStyle.Render("you > ") + m.TextContent()
	case role.Tool:
		var lines []string
		for _, tr := range m.ToolResults() {
			style := toolResultStyle
			if tr.IsError {
				style = toolErrorStyle
			}
			lines = append(lines, style.Render(treeCorner+truncate(tr.Content, 120)))
		}
		return strings.Join(lines, "\n")
	case role.Assistant:
		var lines []string
		if text := m.TextContent(); text != "" {
			lines = append(lines, renderAnswer(text))
		}
		for _, tc := range m.ToolCalls() {
			lines = append(lines, toolNameStyle.Render(treePipe+formatToolCall(tc.Name, tc.Arguments)))
		}
		return strings.Join(lines, "\n")
	default:
		return dimStyle.Render(string(m.Role) + " > " + m.TextContent())
	}
}
