// Package scripted provides a Completer that replays a fixed sequence of
// model decisions. It makes agent runs deterministic in tests and lets the
// CLI run offline.
package scripted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// ErrExhausted is returned once every step has been replayed.
var ErrExhausted = errors.New("scripted: script exhausted")

// Sender is the sender name on every reply.
const Sender = "scripted"

// Step is one model decision. A step with Tool set requests that tool with
// Arguments; otherwise it is a final answer carrying Text. Respond, when
// set, overrides both and computes the reply from the transcript.
type Step struct {
	Text      string                                      `yaml:"text"`
	Tool      string                                      `yaml:"tool"`
	Arguments map[string]any                              `yaml:"arguments"`
	Err       error                                       `yaml:"-"`
	Respond   func(c *chat.Chat) (message.Message, error) `yaml:"-"`
}

// Reply is a final-answer step.
func Reply(text string) Step {
	return Step{Text: text}
}

// Call is a tool-call step.
func Call(tool string, args map[string]any) Step {
	return Step{Tool: tool, Arguments: args}
}

// Fail is a step whose model call fails with err.
func Fail(err error) Step {
	return Step{Err: err}
}

var _ modeladapter.Completer = (*Completer)(nil)

// Completer replays steps in order. It is safe for concurrent use, though
// concurrent callers interleave through the same script.
type Completer struct {
	// Loop repeats the last step once the script runs out instead of
	// returning ErrExhausted.
	Loop bool

	mu    sync.Mutex
	steps []Step
	next  int
	seen  [][]message.Message
	tools [][]string
}

// New creates a Completer over steps.
func New(steps ...Step) *Completer {
	return &Completer{steps: steps}
}

// Complete records the transcript and returns the next scripted decision.
func (s *Completer) Complete(_ context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	s.mu.Lock()
	s.seen = append(s.seen, c.Messages())
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	s.tools = append(s.tools, names)

	step, ok := s.advance()
	s.mu.Unlock()

	if !ok {
		return message.Message{}, ErrExhausted
	}

	return step.reply(c)
}

func (s *Completer) advance() (Step, bool) {
	if s.next < len(s.steps) {
		step := s.steps[s.next]
		s.next++
		return step, true
	}
	if s.Loop && len(s.steps) > 0 {
		return s.steps[len(s.steps)-1], true
	}
	return Step{}, false
}

func (st Step) reply(c *chat.Chat) (message.Message, error) {
	if st.Err != nil {
		return message.Message{}, st.Err
	}
	if st.Respond != nil {
		return st.Respond(c)
	}
	if st.Tool == "" {
		return message.NewAssistant(Sender, st.Text, nil), nil
	}

	args := st.Arguments
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return message.Message{}, fmt.Errorf("scripted: encode arguments for %s: %w", st.Tool, err)
	}

	return message.NewAssistant(Sender, st.Text, &content.ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      st.Tool,
		Arguments: string(raw),
	}), nil
}

// Calls returns how many times Complete was invoked.
func (s *Completer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.seen)
}

// Seen returns the transcript passed to the i-th Complete call.
func (s *Completer) Seen(i int) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.seen) {
		return nil
	}
	return s.seen[i]
}

// ToolsSeen returns the tool names offered on the i-th Complete call.
func (s *Completer) ToolsSeen(i int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.tools) {
		return nil
	}
	return s.tools[i]
}

// Remaining returns how many steps have not been replayed yet.
func (s *Completer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.steps) - s.next
}
