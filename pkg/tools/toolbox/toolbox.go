package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/germanamz/tabletalk/pkg/chats/content"
)

// ToolBox is the registry of tools available to an agent. Tools keep their
// registration order so the catalog sent to the model is reproducible.
// Registration normally happens once at startup; afterwards the ToolBox is
// only read and may be shared between concurrent runs.
type ToolBox struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// New creates an empty ToolBox.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds tools in order. It fails with *DuplicateToolError if a name
// is already registered; tools preceding the duplicate stay registered.
func (tb *ToolBox) Register(tools ...Tool) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for _, t := range tools {
		if t.Name == "" {
			return errors.New("toolbox: tool name is required")
		}
		if t.Handler == nil {
			return fmt.Errorf("toolbox: %s: handler is required", t.Name)
		}
		if _, dup := tb.tools[t.Name]; dup {
			return &DuplicateToolError{Name: t.Name}
		}
		tb.tools[t.Name] = t
		tb.order = append(tb.order, t.Name)
	}

	return nil
}

// MustRegister is like Register but panics on error. Use it for static
// wiring where a duplicate is a programming mistake.
func (tb *ToolBox) MustRegister(tools ...Tool) *ToolBox {
	if err := tb.Register(tools...); err != nil {
		panic(err)
	}
	return tb
}

// Get returns a tool by name and whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	t, ok := tb.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return len(tb.order)
}

// Names returns tool names in registration order.
func (tb *ToolBox) Names() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	names := make([]string, len(tb.order))
	copy(names, tb.order)
	return names
}

// Tools returns all registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	result := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		result = append(result, tb.tools[name])
	}
	return result
}

// Describe returns the model-facing catalog in registration order.
func (tb *ToolBox) Describe() []Descriptor {
	tools := tb.Tools()

	out := make([]Descriptor, len(tools))
	for i, t := range tools {
		out[i] = Descriptor{Name: t.Name, Description: t.Description, Schema: t.Schema}
	}
	return out
}

// Merge registers all tools from other, in other's order.
func (tb *ToolBox) Merge(other *ToolBox) error {
	return tb.Register(other.Tools()...)
}

// Filter returns a new ToolBox containing only the named tools, in this
// ToolBox's registration order. Unknown names are skipped. An empty list
// returns tb itself.
func (tb *ToolBox) Filter(names []string) *ToolBox {
	if len(names) == 0 {
		return tb
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	filtered := New()
	for _, t := range tb.Tools() {
		if _, ok := want[t.Name]; ok {
			filtered.MustRegister(t)
		}
	}
	return filtered
}

// Invoke validates raw against the named tool's schema and runs its handler
// exactly once. Errors are *UnknownToolError, *ArgumentValidationError or
// *ToolExecutionError; on success the handler's value is returned as is.
func (tb *ToolBox) Invoke(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	t, ok := tb.Get(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	args, err := t.Schema.validate(name, raw)
	if err != nil {
		return nil, err
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return nil, &ToolExecutionError{Tool: name, Err: err}
	}

	return result, nil
}

// Call invokes a model tool call and converts the outcome into a
// ToolResult. Failures are reported through IsError so the model can
// correct itself on the next turn.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	result, _ := tb.Dispatch(ctx, tc)
	return result
}

// Dispatch is Call that also returns the failure behind an IsError result,
// for callers that log or report it.
func (tb *ToolBox) Dispatch(ctx context.Context, tc content.ToolCall) (content.ToolResult, error) {
	result := content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
	}

	value, err := tb.Invoke(ctx, tc.Name, json.RawMessage(tc.Arguments))
	if err == nil {
		result.Content, err = Encode(value)
	}
	if err != nil {
		result.Content = err.Error()
		result.IsError = true
		return result, err
	}

	return result, nil
}

// Encode renders a tool's return value as transcript text. Strings pass
// through verbatim, everything else is JSON-encoded.
func Encode(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.RawMessage:
		return string(val), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toolbox: encode result: %w", err)
	}
	return string(data), nil
}
