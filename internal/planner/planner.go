// internal/planner/planner.go
package planner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/llmutil"
)

// LLMPlanner is a DecisionSource backed by a language model.
type LLMPlanner struct {
	client schemas.LLMClient
	tier   schemas.ModelTier
	logger *zap.Logger
}

var _ schemas.DecisionSource = (*LLMPlanner)(nil)

// NewLLMPlanner creates a planner that sends its requests to tier.
func NewLLMPlanner(client schemas.LLMClient, tier schemas.ModelTier, logger *zap.Logger) *LLMPlanner {
	if tier == "" {
		tier = schemas.TierPowerful
	}
	return &LLMPlanner{
		client: client,
		tier:   tier,
		logger: logger.Named("planner"),
	}
}

// NextAction asks the model for one decision. Output that cannot be used is
// normalized to Retry; an error is returned only when the model itself could
// not be reached.
func (p *LLMPlanner) NextAction(ctx context.Context, req schemas.DecisionRequest) (schemas.Action, error) {
	userPrompt, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := p.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Tier:         p.tier,
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planner generation failed: %w", err)
	}

	obj, ok := llmutil.ExtractJSONObject(raw)
	if !ok {
		p.logger.Warn("Planner reply contained no JSON object.", zap.String("raw_response", llmutil.Truncate(raw, 500)))
		return schemas.Retry{Reason: "planner reply contained no JSON object"}, nil
	}

	action := schemas.DecodeAction([]byte(obj))
	if retry, isRetry := action.(schemas.Retry); isRetry {
		p.logger.Warn("Planner produced an unusable decision.",
			zap.String("reason", retry.Reason),
			zap.String("extracted_json", llmutil.Truncate(obj, 500)))
	} else {
		p.logger.Debug("Planner decided.",
			zap.String("kind", string(action.Kind())),
			zap.Duration("duration", time.Since(start)))
	}
	return action, nil
}
