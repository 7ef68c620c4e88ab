package schemas

import "sync"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a task conversation.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationHistory is the append-only transcript of a task. Turns are
// never reordered or removed. Only the agent loop appends; any goroutine may
// take a snapshot.
type ConversationHistory struct {
	mu    sync.RWMutex
	turns []ConversationTurn
}

// NewConversationHistory starts a transcript with the user's goal as the
// first turn.
func NewConversationHistory(goal string) *ConversationHistory {
	h := &ConversationHistory{}
	if goal != "" {
		h.Append(RoleUser, goal)
	}
	return h
}

// Append adds a turn at the end of the transcript.
func (h *ConversationHistory) Append(role Role, content string) {
	h.mu.Lock()
	h.turns = append(h.turns, ConversationTurn{Role: role, Content: content})
	h.mu.Unlock()
}

// Turns returns a copy of the transcript.
func (h *ConversationHistory) Turns() []ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *ConversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn, if any.
func (h *ConversationHistory) Last() (ConversationTurn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return ConversationTurn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
