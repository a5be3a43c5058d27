package toolbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
)

// Type is the declared type of a tool argument.
type Type string

const (
	TypeString      Type = "string"
	TypeNumber      Type = "number"
	TypeInteger     Type = "integer"
	TypeBoolean     Type = "boolean"
	TypeStringArray Type = "array<string>"
	TypeNumberArray Type = "array<number>"
	TypeObject      Type = "object"
	// TypeAny accepts any JSON value. Used for tools imported from MCP
	// servers whose schemas use constructs not covered above.
	TypeAny Type = "any"
)

// Field declares one named argument of a tool.
type Field struct {
	Name        string
	Type        Type
	Required    bool
	Description string
}

// Schema is the ordered list of arguments a tool accepts.
type Schema []Field

// Field returns the named field and whether it is declared.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// validate checks raw against the schema and returns typed arguments.
// Fields not declared in the schema are ignored.
func (s Schema) validate(tool string, raw json.RawMessage) (Args, error) {
	fields := map[string]json.RawMessage{}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &ArgumentValidationError{Tool: tool, Reason: "arguments must be a JSON object"}
		}
	}

	args := make(Args, len(s))
	for _, f := range s {
		v, ok := fields[f.Name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			if f.Required {
				return nil, &ArgumentValidationError{Tool: tool, Field: f.Name, Reason: "required field is missing"}
			}
			continue
		}

		typed, err := decodeValue(f.Type, v)
		if err != nil {
			return nil, &ArgumentValidationError{Tool: tool, Field: f.Name, Reason: err.Error()}
		}
		args[f.Name] = typed
	}

	return args, nil
}

func decodeValue(t Type, raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}

	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(t, v)
		}
		return s, nil

	case TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch(t, v)
		}
		return n.Float64()

	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch(t, v)
		}
		i, err := integral(n)
		if err != nil {
			return nil, err
		}
		return i, nil

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		return b, nil

	case TypeStringArray:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(t, v)
		}
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: %w", i, mismatch(TypeString, item))
			}
			out[i] = s
		}
		return out, nil

	case TypeNumberArray:
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(t, v)
		}
		out := make([]float64, len(items))
		for i, item := range items {
			n, ok := item.(json.Number)
			if !ok {
				return nil, fmt.Errorf("element %d: %w", i, mismatch(TypeNumber, item))
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil

	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(t, v)
		}
		return obj, nil

	case TypeAny:
		return v, nil
	}

	return nil, fmt.Errorf("unsupported declared type %q", t)
}

// integral accepts any JSON number with no fractional part, so 1.0 and 1e3
// are integers as they are in JSON Schema.
func integral(n json.Number) (int64, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, nil
	}

	f, _, err := big.ParseFloat(n.String(), 10, 256, big.ToNearestEven)
	if err != nil || !f.IsInt() {
		return 0, fmt.Errorf("expected integer, got %s", n)
	}
	i, acc := f.Int64()
	if acc != big.Exact {
		return 0, fmt.Errorf("integer %s out of range", n)
	}
	return i, nil
}

func mismatch(want Type, got any) error {
	return fmt.Errorf("expected %s, got %s", want, jsonKind(got))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// JSONSchema renders the schema as a JSON Schema object for model-facing
// tool catalogs. Properties keep declaration order.
func (s Schema) JSONSchema() json.RawMessage {
	var b bytes.Buffer
	b.WriteString(`{"type":"object","properties":{`)

	var required []string
	for i, f := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		b.Write(name)
		b.WriteByte(':')

		prop := jsonSchemaType(f.Type)
		if f.Description != "" {
			prop["description"] = f.Description
		}
		data, _ := json.Marshal(prop)
		b.Write(data)

		if f.Required {
			required = append(required, f.Name)
		}
	}
	b.WriteByte('}')

	if len(required) > 0 {
		data, _ := json.Marshal(required)
		b.WriteString(`,"required":`)
		b.Write(data)
	}
	b.WriteByte('}')

	return b.Bytes()
}

func jsonSchemaType(t Type) map[string]any {
	switch t {
	case TypeStringArray:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case TypeNumberArray:
		return map[string]any{"type": "array", "items": map[string]any{"type": "number"}}
	case TypeAny:
		return map[string]any{}
	}
	return map[string]any{"type": string(t)}
}

// FromJSONSchema converts a JSON Schema object into a Schema. Property order
// is not preserved by JSON objects, so fields are sorted by name. Properties
// whose type cannot be expressed become TypeAny.
func FromJSONSchema(raw json.RawMessage) (Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var doc struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
			Items       *struct {
				Type any `json:"type"`
			} `json:"items"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("toolbox: parse json schema: %w", err)
	}

	required := make(map[string]bool, len(doc.Required))
	for _, r := range doc.Required {
		required[r] = true
	}

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make(Schema, 0, len(names))
	for _, name := range names {
		p := doc.Properties[name]

		t := TypeAny
		switch p.Type {
		case "string":
			t = TypeString
		case "number":
			t = TypeNumber
		case "integer":
			t = TypeInteger
		case "boolean":
			t = TypeBoolean
		case "object":
			t = TypeObject
		case "array":
			if p.Items != nil {
				switch p.Items.Type {
				case "string":
					t = TypeStringArray
				case "number":
					t = TypeNumberArray
				}
			}
		}

		schema = append(schema, Field{
			Name:        name,
			Type:        t,
			Required:    required[name],
			Description: p.Description,
		})
	}

	return schema, nil
}
