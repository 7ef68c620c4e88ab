// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
)

// Navigator executes browser commands. *browser.Worker is the production
// implementation; Do must always return a Result rather than panic.
type Navigator interface {
	Do(ctx context.Context, cmd browser.Command) browser.Result
}

// ObservationBuilder turns a screenshot into page text. *vision.Observer
// implements it.
type ObservationBuilder interface {
	Observe(ctx context.Context, screenshot []byte, question string) (string, error)
}

// Narrator rewrites a status sentence into a conversational reply.
type Narrator interface {
	Narrate(ctx context.Context, history []schemas.ConversationTurn, status string) (string, error)
}
