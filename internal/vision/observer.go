package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// Observer builds textual observations from screenshots.
type Observer struct {
	vision schemas.ImageUnderstanding
	logger *zap.Logger
}

// NewObserver creates an observation builder.
func NewObserver(vision schemas.ImageUnderstanding, logger *zap.Logger) *Observer {
	return &Observer{vision: vision, logger: logger.Named("observer")}
}

// Observe describes the screenshot. With an empty question the description
// is generic; otherwise it answers the question.
func (o *Observer) Observe(ctx context.Context, screenshot []byte, question string) (string, error) {
	if len(screenshot) == 0 {
		return "", fmt.Errorf("cannot observe an empty screenshot")
	}
	text, err := o.vision.Describe(ctx, screenshot, question)
	if err != nil {
		return "", fmt.Errorf("failed to build observation: %w", err)
	}
	if text == "" {
		text = "The page description came back empty."
	}
	o.logger.Debug("Observation built.", zap.Bool("targeted", question != ""), zap.Int("length", len(text)))
	return text, nil
}
