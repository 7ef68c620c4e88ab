package vision

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
)

// LLMModel adapts a multimodal LLMClient to the VisionModel contract.
type LLMModel struct {
	client schemas.LLMClient
	tier   schemas.ModelTier
}

// NewLLMModel wraps client. Requests are routed to the given tier.
func NewLLMModel(client schemas.LLMClient, tier schemas.ModelTier) *LLMModel {
	return &LLMModel{client: client, tier: tier}
}

// Infer sends the prompt with the screenshot attached. The MIME type is
// sniffed so JPEG captures work as well as PNG.
func (m *LLMModel) Infer(ctx context.Context, image []byte, prompt string) (string, error) {
	out, err := m.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt:  "You are a precise visual assistant for a web browsing agent. Bounding boxes use a 0-1000 normalized scale.",
		UserPrompt:    prompt,
		Tier:          m.tier,
		Options:       schemas.GenerationOptions{Temperature: 0},
		Image:         image,
		ImageMIMEType: http.DetectContentType(image),
	})
	if err != nil {
		return "", fmt.Errorf("multimodal generation failed: %w", err)
	}
	return out, nil
}
