// Package usage tracks token consumption across model calls.
package usage

import (
	"fmt"
	"sync"
)

// TokenCount is the token usage of one model call.
type TokenCount struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Add returns the element-wise sum of tc and other.
func (tc TokenCount) Add(other TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + other.InputTokens,
		OutputTokens: tc.OutputTokens + other.OutputTokens,
	}
}

func (tc TokenCount) String() string {
	return fmt.Sprintf("%d in / %d out", tc.InputTokens, tc.OutputTokens)
}

// Tracker accumulates per-call token counts. It is safe for concurrent use;
// the zero value is ready.
type Tracker struct {
	mu    sync.Mutex
	calls []TokenCount
}

// Add records one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, tc)
}

// Last returns the most recent call, false if none was recorded.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.calls) == 0 {
		return TokenCount{}, false
	}
	return t.calls[len(t.calls)-1], true
}

// Total sums all recorded calls.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total TokenCount
	for _, c := range t.calls {
		total = total.Add(c)
	}
	return total
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.calls)
}

// Reset forgets all recorded calls.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = nil
}
