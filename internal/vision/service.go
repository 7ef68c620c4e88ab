// File: internal/vision/service.go
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/llmutil"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
)

// ErrElementNotFound is returned by Locate when the model answer holds no
// usable bounding box.
var ErrElementNotFound = errors.New("element not found on page")

// Service implements schemas.ImageUnderstanding on top of a raw VisionModel.
type Service struct {
	model   schemas.VisionModel
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ schemas.ImageUnderstanding = (*Service)(nil)

// NewService creates the image-understanding service. metrics may be nil.
func NewService(model schemas.VisionModel, logger *zap.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		model:   model,
		logger:  logger.Named("vision"),
		metrics: metrics,
	}
}

// Describe answers question about the screenshot, or lists the page's
// actionable elements when question is empty.
func (s *Service) Describe(ctx context.Context, image []byte, question string) (string, error) {
	prompt := describePrompt
	if q := strings.TrimSpace(question); q != "" {
		prompt = q
	}

	raw, err := s.model.Infer(ctx, image, prompt)
	s.metrics.ObserveVision("describe", err == nil)
	if err != nil {
		return "", fmt.Errorf("describe request failed: %w", err)
	}
	return stripChatTemplate(raw), nil
}

// Locate asks for the bounding box of the described element.
func (s *Service) Locate(ctx context.Context, image []byte, description string) (schemas.BoundingBox, error) {
	raw, err := s.model.Infer(ctx, image, locatePrompt(description))
	if err != nil {
		s.metrics.ObserveVision("locate", false)
		return schemas.BoundingBox{}, fmt.Errorf("locate request failed: %w", err)
	}

	box, ok := ExtractBoundingBox(raw)
	s.metrics.ObserveVision("locate", ok)
	if !ok {
		s.logger.Debug("No bounding box in model output.",
			zap.String("element", description),
			zap.String("raw_output", llmutil.Truncate(raw, 200)),
		)
		return schemas.BoundingBox{}, fmt.Errorf("%w: %q", ErrElementNotFound, description)
	}
	return box, nil
}
