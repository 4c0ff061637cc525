package coach

import (
	"sync"

	"github.com/AntoineDubuc/wingman-ai-sub005/pkg/provider/llm"
)

// DefaultMaxHistoryTurns bounds the rolling conversation history.
const DefaultMaxHistoryTurns = 20

// History is a bounded FIFO of conversation turns. When full, appending
// evicts the oldest turn. Safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []llm.Turn
	max   int
}

// NewHistory creates a History bounded to max turns. Non-positive max
// selects [DefaultMaxHistoryTurns].
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistoryTurns
	}
	return &History{max: max}
}

// Add appends a turn, evicting the oldest when the bound is reached.
func (h *History) Add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, llm.Turn{Role: role, Content: content})
	if len(h.turns) > h.max {
		h.turns = h.turns[len(h.turns)-h.max:]
	}
}

// Turns returns a snapshot of the history, oldest first.
func (h *History) Turns() []llm.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.Turn(nil), h.turns...)
}

// Len returns the current number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
