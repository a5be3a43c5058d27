package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/chats/role"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/providers/scripted"
)

func newSummaryStore(t *testing.T, completer *scripted.Completer, keep int) (*memory.SummaryStore, *memory.InProcess) {
	t.Helper()

	inner := memory.NewInProcess()
	store, err := memory.NewSummaryStore(inner, completer, keep)
	require.NoError(t, err)
	return store, inner
}

func TestSummaryStore_ShortHistoryPassesThrough(t *testing.T) {
	completer := scripted.New()
	store, _ := newSummaryStore(t, completer, 4)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s", turn("q1", "a1")...))

	got, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 0, completer.Calls())
}

func TestSummaryStore_CondensesOlderTurns(t *testing.T) {
	completer := scripted.New(scripted.Reply("S1: 3 orders."), scripted.Reply("S2: 3 orders, 2 users."))
	store, inner := newSummaryStore(t, completer, 4)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s", turn("q1", "a1")...))
	require.NoError(t, store.Append(ctx, "s", turn("q2", "a2")...))

	got, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, role.User, got[0].Role)
	assert.Equal(t, memory.SummarySender, got[0].Sender)
	assert.Contains(t, got[0].TextContent(), "S1: 3 orders.")
	assert.Equal(t, "q2", got[1].TextContent())
	assert.Equal(t, "a2", got[4].TextContent())

	require.Equal(t, 1, completer.Calls())
	prompt := completer.Seen(0)
	require.Len(t, prompt, 2)
	assert.Equal(t, role.System, prompt[0].Role)
	assert.Contains(t, prompt[1].TextContent(), "Human: q1")
	assert.Contains(t, prompt[1].TextContent(), "Tool run_query: [[3]]")
	assert.NotContains(t, prompt[1].TextContent(), "q2")

	t.Run("stored summary is reused", func(t *testing.T) {
		again, err := store.Load(ctx, "s")
		require.NoError(t, err)
		assert.Len(t, again, 5)
		assert.Equal(t, 1, completer.Calls())
	})

	t.Run("summary is extended as history grows", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, "s", turn("q3", "a3")...))

		got, err := store.Load(ctx, "s")
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Contains(t, got[0].TextContent(), "S2")
		assert.Equal(t, "q3", got[1].TextContent())

		require.Equal(t, 2, completer.Calls())
		prompt := completer.Seen(1)[1].TextContent()
		assert.Contains(t, prompt, "S1: 3 orders.")
		assert.Contains(t, prompt, "Human: q2")
		assert.NotContains(t, prompt, "Human: q1")
	})

	t.Run("full history is never rewritten", func(t *testing.T) {
		full, err := inner.Load(ctx, "s")
		require.NoError(t, err)
		assert.Len(t, full, 12)
		assert.Equal(t, "q1", full[0].TextContent())
	})

	t.Run("summary logs are hidden from listings", func(t *testing.T) {
		sessions, err := store.Sessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s", sessions[0].ID)
	})
}

func TestSummaryStore_TailStartsAtUserMessage(t *testing.T) {
	completer := scripted.New(scripted.Reply("earlier"))
	store, _ := newSummaryStore(t, completer, 3)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s", turn("q1", "a1")...))
	require.NoError(t, store.Append(ctx, "s", turn("q2", "a2")...))

	// The last three messages start mid-turn, so the whole second turn is kept.
	got, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "q2", got[1].TextContent())
	assert.Len(t, got[2].ToolCalls(), 1)
	assert.Len(t, got[3].ToolResults(), 1)
}

func TestSummaryStore_FallsBackOnModelError(t *testing.T) {
	completer := scripted.New(scripted.Fail(errors.New("model down")))
	store, inner := newSummaryStore(t, completer, 4)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s", turn("q1", "a1")...))
	require.NoError(t, store.Append(ctx, "s", turn("q2", "a2")...))

	got, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, got, 8)

	recs, err := inner.Load(ctx, "s.summary")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSummaryStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	completer := scripted.New(scripted.Reply("persisted summary"))
	store, err := memory.NewSummaryStore(first, completer, 4)
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "s", turn("q1", "a1")...))
	require.NoError(t, store.Append(ctx, "s", turn("q2", "a2")...))
	_, err = store.Load(ctx, "s")
	require.NoError(t, err)

	second, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	idle := scripted.New()
	reopened, err := memory.NewSummaryStore(second, idle, 4)
	require.NoError(t, err)

	got, err := reopened.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Contains(t, got[0].TextContent(), "persisted summary")
	assert.Equal(t, 0, idle.Calls())
}

func TestNewSummaryStore_Validates(t *testing.T) {
	_, err := memory.NewSummaryStore(nil, scripted.New(), 4)
	require.Error(t, err)

	_, err = memory.NewSummaryStore(memory.NewInProcess(), nil, 4)
	require.Error(t, err)

	_, err = memory.NewSummaryStore(memory.NewInProcess(), scripted.New(), 0)
	require.Error(t, err)
}

var _ memory.Store = (*memory.SummaryStore)(nil)

func TestSummaryStore_WithoutListerInner(t *testing.T) {
	store, err := memory.NewSummaryStore(storeOnly{memory.NewInProcess()}, scripted.New(), 2)
	require.NoError(t, err)

	_, err = store.Sessions(context.Background())
	require.ErrorIs(t, err, memory.ErrListUnsupported)
}

// storeOnly hides every method but Load and Append.
type storeOnly struct{ inner memory.Store }

func (s storeOnly) Load(ctx context.Context, id string) ([]message.Message, error) {
	return s.inner.Load(ctx, id)
}

func (s storeOnly) Append(ctx context.Context, id string, msgs ...message.Message) error {
	return s.inner.Append(ctx, id, msgs...)
}
