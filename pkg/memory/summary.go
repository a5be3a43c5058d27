package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/chats/content"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
)

// SummarySender is the sender of the message that stands in for condensed
// history.
const SummarySender = "summary"

// summarySuffix keys the summary log kept next to each session.
const summarySuffix = ".summary"

// metaCovers records how many session messages a summary condenses.
const metaCovers = "summary_covers"

const summaryInstructions = `Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary.
Keep every number, table name and file name that was mentioned. Reply with the summary only.`

// SummaryStore keeps the full history in an inner store and hydrates a
// session with a model-written summary of everything but the most recent
// messages. Summaries are appended to a companion log in the inner store and
// only extended when the history grows past them, so the model is asked
// again only for messages it has not condensed yet.
type SummaryStore struct {
	inner     Store
	completer modeladapter.Completer
	keep      int
	log       *slog.Logger
}

// NewSummaryStore wraps inner. keep is the number of recent messages passed
// through verbatim; the tail always starts at a user message so tool calls
// are never separated from their results.
func NewSummaryStore(inner Store, completer modeladapter.Completer, keep int) (*SummaryStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("memory: summary store requires an inner store")
	}
	if completer == nil {
		return nil, fmt.Errorf("memory: summary store requires a completer")
	}
	if keep <= 0 {
		return nil, fmt.Errorf("memory: summary keep must be positive, got %d", keep)
	}
	return &SummaryStore{inner: inner, completer: completer, keep: keep, log: slog.Default()}, nil
}

// Inner returns the wrapped store.
func (s *SummaryStore) Inner() Store { return s.inner }

// Append implements Store. Messages go to the inner store unchanged.
func (s *SummaryStore) Append(ctx context.Context, sessionID string, msgs ...message.Message) error {
	return s.inner.Append(ctx, sessionID, msgs...)
}

// Load implements Store. When the session is longer than keep, the older
// messages are replaced by one user message from SummarySender.
func (s *SummaryStore) Load(ctx context.Context, sessionID string) ([]message.Message, error) {
	full, err := s.inner.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cut := tailStart(full, s.keep)
	if cut == 0 {
		return full, nil
	}

	prev, covered, err := s.latestSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if covered > cut && covered <= len(full) && startsTurn(full, covered) {
		cut = covered
	}

	summary := prev
	if covered < cut {
		summary, err = s.summarize(ctx, prev, full[covered:cut])
		if err != nil {
			s.log.WarnContext(ctx, "history not summarized, using full history", "session", sessionID, "error", err)
			return full, nil
		}

		rec := message.NewText(SummarySender, role.User, summary)
		rec.Metadata = map[string]any{metaCovers: cut}
		if err := s.inner.Append(ctx, sessionID+summarySuffix, rec); err != nil {
			return nil, err
		}
		s.log.DebugContext(ctx, "history summarized", "session", sessionID, "covers", cut)
	}

	out := make([]message.Message, 0, len(full)-cut+1)
	out = append(out, summaryMessage(summary))
	out = append(out, full[cut:]...)
	return out, nil
}

// Sessions lists the sessions of the inner store, hiding summary logs.
func (s *SummaryStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	lister, ok := s.inner.(Lister)
	if !ok {
		return nil, ErrListUnsupported
	}

	all, err := lister.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(all))
	for _, info := range all {
		if !strings.HasSuffix(info.ID, summarySuffix) {
			out = append(out, info)
		}
	}
	return out, nil
}

// Close closes the inner store when it holds resources.
func (s *SummaryStore) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (s *SummaryStore) latestSummary(ctx context.Context, sessionID string) (string, int, error) {
	recs, err := s.inner.Load(ctx, sessionID+summarySuffix)
	if err != nil {
		return "", 0, err
	}
	if len(recs) == 0 {
		return "", 0, nil
	}

	last := recs[len(recs)-1]
	return last.TextContent(), coversOf(last), nil
}

func (s *SummaryStore) summarize(ctx context.Context, prev string, msgs []message.Message) (string, error) {
	var b strings.Builder
	b.WriteString("Current summary:\n")
	if prev == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(prev)
	}
	b.WriteString("\n\nNew lines of conversation:\n")
	for _, m := range msgs {
		b.WriteString(transcriptLine(m))
		b.WriteByte('\n')
	}
	b.WriteString("\nNew summary:")

	c := chat.New(message.NewSystem(summaryInstructions), message.NewUser(b.String()))
	reply, err := s.completer.Complete(ctx, c, nil)
	if err != nil {
		return "", fmt.Errorf("memory: summarize: %w", err)
	}

	text := strings.TrimSpace(reply.TextContent())
	if text == "" {
		return "", fmt.Errorf("memory: summarize: model returned an empty summary")
	}
	return text, nil
}

func summaryMessage(text string) message.Message {
	return message.NewText(SummarySender, role.User, "Summary of the earlier conversation:\n"+text)
}

// tailStart returns the index of the first message kept verbatim: the
// earliest user message among the last keep messages, or the last user
// message when the window holds none. Zero means nothing is condensed.
func tailStart(msgs []message.Message, keep int) int {
	if len(msgs) <= keep {
		return 0
	}

	for i := len(msgs) - keep; i < len(msgs); i++ {
		if msgs[i].Role == role.User {
			return i
		}
	}
	for i := len(msgs) - keep - 1; i > 0; i-- {
		if msgs[i].Role == role.User {
			return i
		}
	}
	return 0
}

func startsTurn(msgs []message.Message, i int) bool {
	return i == len(msgs) || msgs[i].Role == role.User
}

// coversOf reads the covered count back. Decoded JSON numbers are float64.
func coversOf(m message.Message) int {
	switch v := m.Metadata[metaCovers].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func transcriptLine(m message.Message) string {
	switch m.Role {
	case role.User:
		return "Human: " + m.TextContent()
	case role.Assistant:
		line := "AI: " + m.TextContent()
		for _, tc := range m.ToolCalls() {
			line += fmt.Sprintf(" [called %s %s]", tc.Name, tc.Arguments)
		}
		return line
	case role.Tool:
		var parts []string
		for _, r := range m.ToolResults() {
			parts = append(parts, toolLine(r))
		}
		return strings.Join(parts, "\n")
	}
	return m.TextContent()
}

func toolLine(r content.ToolResult) string {
	const limit = 500
	text := r.Content
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	if r.IsError {
		return fmt.Sprintf("Tool %s failed: %s", r.Name, text)
	}
	return fmt.Sprintf("Tool %s: %s", r.Name, text)
}
