// Package providers groups the concrete modeladapter.Completer
// implementations.
//
// Sub-packages:
//   - [github.com/germanamz/tabletalk/pkg/providers/openai]: Chat Completions API and compatible endpoints
//   - [github.com/germanamz/tabletalk/pkg/providers/anthropic]: Messages API
//   - [github.com/germanamz/tabletalk/pkg/providers/scripted]: replays a fixed script, for tests and offline demos
//
// HTTP providers embed modeladapter.ModelAdapter for auth, JSON posting and
// usage tracking.
package providers
