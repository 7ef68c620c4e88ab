package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

func TestLLMNarrator_Narrate(t *testing.T) {
	client := new(mockLLMClient)
	n := NewLLMNarrator(client, zaptest.NewLogger(t))

	history := make([]schemas.ConversationTurn, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, schemas.ConversationTurn{Role: schemas.RoleUser, Content: fmt.Sprintf("turn-%02d", i)})
	}

	client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast &&
			req.Options.Temperature == 0.7 &&
			req.SystemPrompt == narratorSystemPrompt &&
			containsAll(req.UserPrompt, "turn-19", "turn-08", "I will scroll down.") &&
			!containsAll(req.UserPrompt, "turn-07")
	})).Return("  Scrolling down for you.  \n", nil).Once()

	out, err := n.Narrate(context.Background(), history, "I will scroll down.")
	require.NoError(t, err)
	assert.Equal(t, "Scrolling down for you.", out)
	client.AssertExpectations(t)
}

func TestLLMNarrator_Error(t *testing.T) {
	client := new(mockLLMClient)
	n := NewLLMNarrator(client, zaptest.NewLogger(t))
	client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

	_, err := n.Narrate(context.Background(), nil, "I will scroll down.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narration failed")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
