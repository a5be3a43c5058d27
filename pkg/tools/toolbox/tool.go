package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes a tool with arguments that already passed schema
// validation. The returned value is handed back to the caller unchanged.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool describes an executable tool: a unique name, a description shown to
// the model, the declared argument schema, and the handler.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

// InputSchema returns the JSON Schema for the tool's arguments.
func (t Tool) InputSchema() json.RawMessage {
	return t.Schema.JSONSchema()
}

// Descriptor is the model-facing view of a tool.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      Schema `json:"-"`
}

// Args holds validated tool arguments keyed by field name. Values have the
// Go type matching the declared field type: string, float64, int64, bool,
// []string, []float64, map[string]any, or any for TypeAny.
type Args map[string]any

// Has reports whether an argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string argument, or "" if absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Number returns a number argument, or 0 if absent.
func (a Args) Number(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Int returns an integer argument, or 0 if absent.
func (a Args) Int(name string) int64 {
	i, _ := a[name].(int64)
	return i
}

// Bool returns a boolean argument, or false if absent.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Strings returns a string array argument, or nil if absent.
func (a Args) Strings(name string) []string {
	s, _ := a[name].([]string)
	return s
}

// Raw re-encodes the arguments as a JSON object.
func (a Args) Raw() (json.RawMessage, error) {
	data, err := json.Marshal(map[string]any(a))
	if err != nil {
		return nil, fmt.Errorf("toolbox: encode args: %w", err)
	}
	return data, nil
}
