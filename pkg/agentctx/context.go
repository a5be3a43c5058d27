// Package agentctx carries the identity of the running agent turn through a
// context.Context. It has no dependencies so the agent, the tools and the
// tracing layer can all import it.
package agentctx

import "context"

type (
	agentNameKey struct{}
	sessionIDKey struct{}
)

// WithAgentName returns a context carrying the agent name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey{}, name)
}

// AgentName returns the agent name, or "".
func AgentName(ctx context.Context) string {
	v, _ := ctx.Value(agentNameKey{}).(string)
	return v
}

// WithSessionID returns a context carrying the session ID of the turn.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the session ID, or "".
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey{}).(string)
	return v
}
