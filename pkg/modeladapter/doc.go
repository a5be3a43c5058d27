// Package modeladapter is the boundary between the agent loop and a language
// model.
//
// It contains:
//   - [Completer]: the one method the agent needs from a model
//   - [ModelAdapter]: an embeddable base for HTTP providers with auth, JSON
//     posting, 429 detection and usage tracking
//   - [RateLimitedCompleter]: request and token throttling plus 429 retry
//   - [github.com/germanamz/tabletalk/pkg/modeladapter/usage]: token usage tracker
//
// Concrete providers live under pkg/providers and embed ModelAdapter.
package modeladapter
