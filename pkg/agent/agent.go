// Package agent runs the question-answering loop: the model is asked for its
// next decision, requested tools are dispatched and their results appended
// to the transcript, until the model gives a final answer or the iteration
// cap is reached.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/germanamz/tabletalk/pkg/agentctx"
	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

// DefaultMaxIterations caps model calls per run when Config leaves it zero.
const DefaultMaxIterations = 10

// Config configures an Agent.
type Config struct {
	Name         string                 // Sender name and log label (default "agent").
	Instructions string                 // System prompt; omitted when empty.
	Completer    modeladapter.Completer // Required.
	Tools        *toolbox.ToolBox       // Tool registry; nil means no tools.
	Memory       memory.Store           // Optional session memory.
	// MaxIterations is the number of model calls allowed per run.
	MaxIterations int
	Middleware    []Middleware
	Logger        *slog.Logger
	Observer      Observer
}

// Result is the outcome of a run.
type Result struct {
	// Answer is the text of the final assistant message.
	Answer string
	Reply  message.Message
	// Transcript is the full transcript, system message included.
	Transcript []message.Message
	// NewMessages are the messages this run added, starting with the user
	// message for Run. They are what gets persisted.
	NewMessages []message.Message
	ToolCalls   int
	// PersistErr is a *PersistenceError when the answer could not be saved.
	// The answer is still valid.
	PersistErr error
}

// Agent answers questions with a model and a tool registry. It holds no
// per-run state, so one Agent may serve concurrent runs on different
// sessions.
type Agent struct {
	name         string
	instructions string
	completer    modeladapter.Completer
	tools        *toolbox.ToolBox
	memory       memory.Store
	maxIter      int
	log          *slog.Logger
	observer     Observer
	runner       Runner
}

// New validates cfg and creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Completer == nil {
		return nil, errors.New("agent: completer is required")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("agent: max iterations must not be negative, got %d", cfg.MaxIterations)
	}

	a := &Agent{
		name:         cfg.Name,
		instructions: cfg.Instructions,
		completer:    cfg.Completer,
		tools:        cfg.Tools,
		memory:       cfg.Memory,
		maxIter:      cfg.MaxIterations,
		log:          cfg.Logger,
		observer:     cfg.Observer,
	}
	if a.name == "" {
		a.name = "agent"
	}
	if a.tools == nil {
		a.tools = toolbox.New()
	}
	if a.maxIter == 0 {
		a.maxIter = DefaultMaxIterations
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	a.runner = chain(RunnerFunc(a.run), cfg.Middleware)
	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *toolbox.ToolBox { return a.tools }

// Memory returns the session store, or nil.
func (a *Agent) Memory() memory.Store { return a.memory }

// Run answers userText within a session. Prior messages of the session are
// loaded from memory first, and the new messages are appended to it once
// the model gives a final answer. An empty sessionID disables memory.
func (a *Agent) Run(ctx context.Context, sessionID, userText string) (Result, error) {
	return a.runner.Run(ctx, Request{SessionID: sessionID, Input: userText})
}

// Resume drives an existing transcript to a final answer without adding a
// user message. A transcript that already ends in a final answer returns it
// without calling the model. One that ends in an unanswered tool call fails
// with ErrPendingToolCall. Nothing is persisted.
func (a *Agent) Resume(ctx context.Context, transcript []message.Message) (Result, error) {
	return a.runner.Run(ctx, Request{Resume: true, Transcript: transcript})
}

func (a *Agent) run(ctx context.Context, req Request) (Result, error) {
	ctx = agentctx.WithAgentName(ctx, a.name)
	ctx = agentctx.WithSessionID(ctx, req.SessionID)

	a.emit(ctx, Event{Kind: EventRunStart, SessionID: req.SessionID})

	var (
		res Result
		err error
	)
	if req.Resume {
		res, err = a.resume(ctx, req.Transcript)
	} else {
		res, err = a.turn(ctx, req.SessionID, req.Input)
	}

	if err != nil {
		a.emit(ctx, Event{Kind: EventError, SessionID: req.SessionID, Err: err})
		return res, err
	}

	a.emit(ctx, Event{Kind: EventRunEnd, SessionID: req.SessionID, Answer: res.Answer})
	return res, nil
}

// turn builds the transcript for a new user message, runs the loop and
// persists what the turn added.
func (a *Agent) turn(ctx context.Context, sessionID, userText string) (Result, error) {
	c := chat.New()
	if a.instructions != "" {
		c.Append(message.NewSystem(a.instructions))
	}

	if a.memory != nil && sessionID != "" {
		history, err := a.memory.Load(ctx, sessionID)
		if err != nil {
			return Result{}, &PersistenceError{Op: "load", SessionID: sessionID, Err: err}
		}
		for _, m := range history {
			if m.Role != role.System {
				c.Append(m)
			}
		}
	}

	start := c.Len()
	c.Append(message.NewUser(userText))

	res, err := a.loop(ctx, c, start)
	if err != nil {
		return res, err
	}

	if a.memory != nil && sessionID != "" {
		if err := a.memory.Append(ctx, sessionID, res.NewMessages...); err != nil {
			res.PersistErr = &PersistenceError{Op: "append", SessionID: sessionID, Err: err}
			a.log.WarnContext(ctx, "answer not persisted", "agent", a.name, "session", sessionID, "error", err)
			a.emit(ctx, Event{Kind: EventPersistWarning, SessionID: sessionID, Err: res.PersistErr})
		}
	}

	return res, nil
}

func (a *Agent) resume(ctx context.Context, transcript []message.Message) (Result, error) {
	c := chat.New()
	if a.instructions != "" && (len(transcript) == 0 || transcript[0].Role != role.System) {
		c.Append(message.NewSystem(a.instructions))
	}
	c.Append(transcript...)

	last, ok := c.Last()
	if !ok || last.Role == role.System {
		return Result{}, ErrEmptyTranscript
	}

	if last.IsFinal() {
		return Result{
			Answer:      last.TextContent(),
			Reply:       last,
			Transcript:  c.Messages(),
			NewMessages: []message.Message{},
		}, nil
	}

	if pending := pendingCalls(c); len(pending) > 0 {
		return Result{Transcript: c.Messages()}, fmt.Errorf("%w: %s (id %q)", ErrPendingToolCall, pending[0].Name, pending[0].ID)
	}

	return a.loop(ctx, c, c.Len())
}

// pendingCalls returns the tool calls of the last assistant message that
// have no matching result after it.
func pendingCalls(c *chat.Chat) []content.ToolCall {
	for i := c.Len() - 1; i >= 0; i-- {
		m := c.At(i)
		if m.Role != role.Assistant {
			continue
		}

		var results []content.ToolResult
		for _, after := range c.Since(i + 1) {
			results = append(results, after.ToolResults()...)
		}

		var pending []content.ToolCall
		for _, tc := range m.ToolCalls() {
			answered := false
			for _, r := range results {
				if r.Answers(tc) {
					answered = true
					break
				}
			}
			if !answered {
				pending = append(pending, tc)
			}
		}
		return pending
	}
	return nil
}

// loop alternates model calls and tool dispatch until a final answer. start
// is the index of the first message this run owns.
func (a *Agent) loop(ctx context.Context, c *chat.Chat, start int) (Result, error) {
	tools := a.tools.Tools()
	calls := 0

	partial := func() Result {
		return Result{Transcript: c.Messages(), NewMessages: c.Since(start), ToolCalls: calls}
	}

	for i := range a.maxIter {
		if err := ctx.Err(); err != nil {
			return partial(), fmt.Errorf("agent %s: %w", a.name, err)
		}

		reply, err := a.completer.Complete(ctx, c, tools)
		if err != nil {
			return partial(), fmt.Errorf("agent %s: model call %d: %w", a.name, i+1, err)
		}

		reply.Role = role.Assistant
		if reply.Sender == "" {
			reply.Sender = a.name
		}
		c.Append(reply)

		if reply.IsFinal() {
			res := partial()
			res.Answer = reply.TextContent()
			res.Reply = reply
			return res, nil
		}

		for _, tc := range reply.ToolCalls() {
			a.dispatch(ctx, c, i+1, tc)
			calls++
		}
	}

	return partial(), &MaxIterationsError{Limit: a.maxIter, Transcript: c.Messages()}
}

// dispatch runs one tool call and appends its result. Tool failures become
// error results for the model to read, never run errors.
func (a *Agent) dispatch(ctx context.Context, c *chat.Chat, iteration int, tc content.ToolCall) {
	a.emit(ctx, Event{Kind: EventToolCallStart, Iteration: iteration, Call: &tc})

	result, err := a.tools.Dispatch(ctx, tc)
	if err != nil {
		a.log.DebugContext(ctx, "tool call failed", "agent", a.name, "tool", tc.Name, "error", err)
	} else {
		a.log.DebugContext(ctx, "tool call", "agent", a.name, "tool", tc.Name, "bytes", len(result.Content))
	}

	c.Append(message.NewToolResult(tc.Name, result))

	a.emit(ctx, Event{Kind: EventToolCallEnd, Iteration: iteration, Call: &tc, Result: &result, Err: err})
}

func (a *Agent) emit(ctx context.Context, ev Event) {
	if a.observer == nil {
		return
	}
	ev.Agent = a.name
	if ev.SessionID == "" {
		ev.SessionID = agentctx.SessionID(ctx)
	}
	a.observer.Observe(ctx, ev)
}
