// Package chats provides the provider-agnostic conversation model used by the
// agent loop.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/tabletalk/pkg/chats/role]: conversation roles (system, user, assistant, tool)
//   - [github.com/germanamz/tabletalk/pkg/chats/content]: content parts (text, tool call, tool result)
//   - [github.com/germanamz/tabletalk/pkg/chats/message]: messages composed of a role, sender and parts, plus the JSON codec used by session stores
//   - [github.com/germanamz/tabletalk/pkg/chats/chat]: the append-only transcript
//
// No provider or storage code lives here.
package chats
