// Package chat provides the append-only transcript of a conversation.
package chat

import (
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
)

// Chat is an ordered, append-only list of messages. The zero value is ready
// to use. Messages are never removed or rewritten.
// Chat is not safe for concurrent use; each run owns its own Chat.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	c := &Chat{}
	c.Append(msgs...)
	return c
}

// Append adds one or more messages to the end of the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	return c.Since(0)
}

// Since returns a copy of the messages from index i onward. An index past
// the end yields an empty slice.
func (c *Chat) Since(i int) []message.Message {
	if i < 0 {
		i = 0
	}
	if i >= len(c.messages) {
		return []message.Message{}
	}
	cp := make([]message.Message, len(c.messages)-i)
	copy(cp, c.messages[i:])
	return cp
}

// Each iterates over messages, calling fn for each one. If fn returns false,
// iteration stops early.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.messages {
		if !fn(i, m) {
			return
		}
	}
}

// SystemPrompt returns the text of the leading system message, or an empty
// string if the transcript does not start with one.
func (c *Chat) SystemPrompt() string {
	if len(c.messages) > 0 && c.messages[0].Role == role.System {
		return c.messages[0].TextContent()
	}
	return ""
}
