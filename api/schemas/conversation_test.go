package schemas

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHistory(t *testing.T) {
	h := NewConversationHistory("buy running shoes")
	h.Append(RoleAssistant, "I will navigate to https://example-shop.test.")
	h.Append(RoleUser, "size 10")

	want := []ConversationTurn{
		{Role: RoleUser, Content: "buy running shoes"},
		{Role: RoleAssistant, Content: "I will navigate to https://example-shop.test."},
		{Role: RoleUser, Content: "size 10"},
	}
	if diff := cmp.Diff(want, h.Turns()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "size 10", last.Content)
}

func TestConversationHistory_TurnsIsACopy(t *testing.T) {
	h := NewConversationHistory("goal")
	turns := h.Turns()
	turns[0].Content = "tampered"

	assert.Equal(t, "goal", h.Turns()[0].Content)
}

func TestConversationHistory_EmptyGoal(t *testing.T) {
	h := NewConversationHistory("")
	assert.Zero(t, h.Len())
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestConversationHistory_ConcurrentSnapshots(t *testing.T) {
	h := NewConversationHistory("goal")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.Append(RoleAssistant, fmt.Sprintf("step %d", i))
		}
	}()
	for i := 0; i < 100; i++ {
		_ = h.Turns()
	}
	wg.Wait()

	turns := h.Turns()
	require.Len(t, turns, 101)
	for i := 1; i < len(turns); i++ {
		assert.Equal(t, fmt.Sprintf("step %d", i-1), turns[i].Content, "append order must be preserved")
	}
}
