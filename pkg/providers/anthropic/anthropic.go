// Package anthropic implements modeladapter.Completer on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
	"github.com/germanamz/tabletalk/pkg/modeladapter/usage"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// DefaultBaseURL is used when New receives an empty base URL.
const DefaultBaseURL = "https://api.anthropic.com"

const (
	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter is a Messages API client.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter for the given model.
func New(baseURL, apiKey, model string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	a := &Adapter{}
	a.BaseURL = strings.TrimRight(baseURL, "/")
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "x-api-key"}
	a.Name = model
	a.MaxTokens = 4096
	a.Headers = map[string]string{"anthropic-version": apiVersion}
	a.HeaderParser = modeladapter.ParseAnthropicRateLimitHeaders

	return a
}

// Complete sends the transcript and tool catalog and converts the content
// blocks of the reply into an assistant message.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, a.buildRequest(c, tools), &resp); err != nil {
		return message.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})

	return a.parseResponse(resp), nil
}

type apiRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []apiMessage   `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	Tools       []apiToolDef   `json:"tools,omitempty"`
	ToolChoice  *apiToolChoice `json:"tool_choice,omitempty"`
}

type apiToolChoice struct {
	Type                   string `json:"type"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

type apiBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type apiToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiResponse struct {
	Content    []apiBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      apiUsage   `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		System:    c.SystemPrompt(),
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	if len(tools) > 0 {
		req.ToolChoice = &apiToolChoice{Type: "auto", DisableParallelToolUse: true}
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			req.Tools[i] = apiToolDef{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema(),
			}
		}
	}

	c.Each(func(_ int, m message.Message) bool {
		if m.Role != role.System {
			req.Messages = appendMessage(req.Messages, m)
		}
		return true
	})

	return req
}

// appendMessage converts m to content blocks. Tool results travel in user
// messages, and consecutive blocks of the same role are merged because the
// API requires alternating roles.
func appendMessage(msgs []apiMessage, m message.Message) []apiMessage {
	apiRole := "user"
	if m.Role == role.Assistant {
		apiRole = "assistant"
	}

	for _, p := range m.Parts {
		block, ok := toBlock(p)
		if !ok {
			continue
		}

		if n := len(msgs); n > 0 && msgs[n-1].Role == apiRole {
			msgs[n-1].Content = append(msgs[n-1].Content, block)
			continue
		}
		msgs = append(msgs, apiMessage{Role: apiRole, Content: []apiBlock{block}})
	}

	return msgs
}

func toBlock(p content.Part) (apiBlock, bool) {
	switch v := p.(type) {
	case content.Text:
		if v.Text == "" {
			return apiBlock{}, false
		}
		return apiBlock{Type: "text", Text: v.Text}, true
	case content.ToolCall:
		input := json.RawMessage(v.Arguments)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return apiBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: input}, true
	case content.ToolResult:
		return apiBlock{Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Content, IsError: v.IsError}, true
	}
	return apiBlock{}, false
}

func (a *Adapter) parseResponse(resp apiResponse) message.Message {
	var parts []content.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, content.Text{Text: block.Text})
		case "tool_use":
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			parts = append(parts, content.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return message.New(a.Name, role.Assistant, parts...)
}
