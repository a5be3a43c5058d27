package toolbox

import "fmt"

// DuplicateToolError is returned when registering a name that is already
// taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("toolbox: duplicate tool %q", e.Name)
}

// UnknownToolError is returned when invoking a name that was never
// registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("toolbox: unknown tool %q", e.Name)
}

// ArgumentValidationError is returned when call arguments do not match the
// tool's schema. Field is empty when the arguments as a whole are malformed.
type ArgumentValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgumentValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("toolbox: %s: invalid arguments: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("toolbox: %s: invalid argument %q: %s", e.Tool, e.Field, e.Reason)
}

// ToolExecutionError wraps a failure raised by a tool handler.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("toolbox: %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
