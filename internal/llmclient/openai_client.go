// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
)

// openAIMaxRetries is handed to the SDK, which retries 408, 409, 429 and
// 5xx responses itself.
const openAIMaxRetries = 2

// OpenAIClient implements schemas.LLMClient on the Chat Completions API. It
// also works with OpenAI-compatible servers through Endpoint.
type OpenAIClient struct {
	client openai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("OpenAI model name is required")
	}
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}

	httpClient := &http.Client{Timeout: cfg.APITimeout}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(openAIMaxRetries),
	}
	if base := strings.TrimSpace(cfg.Endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	startTime := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	duration := time.Since(startTime)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("OpenAI API returned error status", zap.Int("status", apiErr.StatusCode), zap.Error(err))
			return "", fmt.Errorf("openai API error: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("openai API refused the request: %s", choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("openai API returned empty content (Reason: %s)", choice.FinishReason)
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.Duration("duration", duration),
		zap.String("model", c.config.Model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return choice.Message.Content, nil
}

func (c *OpenAIClient) buildParams(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	if len(req.Image) > 0 {
		mime := req.ImageMIMEType
		if mime == "" {
			mime = http.DetectContentType(req.Image)
		}
		dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			openai.TextContentPart(req.UserPrompt),
		}))
	} else {
		messages = append(messages, openai.UserMessage(req.UserPrompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.config.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Options.Temperature),
	}

	topP := float64(c.config.TopP)
	if req.Options.TopP > 0 {
		topP = req.Options.TopP
	}
	if topP > 0 {
		params.TopP = openai.Float(topP)
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.config.MaxTokens))
	}
	if req.Options.ForceJSONFormat {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// Close implements schemas.LLMClient.
func (c *OpenAIClient) Close() error {
	return nil
}
