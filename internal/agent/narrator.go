package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

const narratorSystemPrompt = `You are the friendly voice of a web browsing assistant.
Rewrite the assistant's latest status update as one or two short, conversational sentences addressed to the user.
Keep every fact from the status update, including failures. Never claim an action succeeded if the update says it failed. Do not invent new actions.`

// narratorHistoryTurns bounds how much of the transcript the narrator sees.
const narratorHistoryTurns = 12

// LLMNarrator phrases status sentences with a fast language model.
type LLMNarrator struct {
	client schemas.LLMClient
	logger *zap.Logger
}

var _ Narrator = (*LLMNarrator)(nil)

// NewLLMNarrator creates a narrator on client's fast tier.
func NewLLMNarrator(client schemas.LLMClient, logger *zap.Logger) *LLMNarrator {
	return &LLMNarrator{client: client, logger: logger.Named("narrator")}
}

// Narrate implements Narrator.
func (n *LLMNarrator) Narrate(ctx context.Context, history []schemas.ConversationTurn, status string) (string, error) {
	if len(history) > narratorHistoryTurns {
		history = history[len(history)-narratorHistoryTurns:]
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&b, "\nLatest status update:\n%s", status)

	out, err := n.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: narratorSystemPrompt,
		UserPrompt:   b.String(),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.7},
	})
	if err != nil {
		return "", fmt.Errorf("narration failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}
