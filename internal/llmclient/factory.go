// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
)

// NewClient creates an LLMClient for a single model configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// NewClientForModel builds the client for the named llm.models entry.
func NewClientForModel(ctx context.Context, cfg config.LLMRouterConfig, name string, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("model '%s' is not defined under llm.models", name)
	}
	client, err := NewClient(ctx, modelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for model '%s': %w", name, err)
	}
	return client, nil
}

// NewRouterFromConfig builds the fast and powerful clients and a router over
// them. When both tiers name the same model, one client serves both.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	if cfg.DefaultFastModel == "" || cfg.DefaultPowerfulModel == "" {
		return nil, fmt.Errorf("both llm.default_fast_model and llm.default_powerful_model must be set")
	}

	fast, err := NewClientForModel(ctx, cfg, cfg.DefaultFastModel, logger)
	if err != nil {
		return nil, err
	}

	powerful := fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		powerful, err = NewClientForModel(ctx, cfg, cfg.DefaultPowerfulModel, logger)
		if err != nil {
			_ = fast.Close()
			return nil, err
		}
	}

	return NewLLMRouter(logger, fast, powerful)
}
