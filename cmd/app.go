// File: cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/api/schemas"
	"github.com/xkilldash9x/wayfinder-cli/internal/agent"
	"github.com/xkilldash9x/wayfinder-cli/internal/browser"
	"github.com/xkilldash9x/wayfinder-cli/internal/config"
	"github.com/xkilldash9x/wayfinder-cli/internal/llmclient"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
	"github.com/xkilldash9x/wayfinder-cli/internal/planner"
	"github.com/xkilldash9x/wayfinder-cli/internal/vision"
)

// Seams for tests; production code uses Chrome and the configured providers.
var (
	newDriver = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error) {
		return browser.NewChromeDriver(ctx, cfg, logger)
	}
	newLLMClient = func(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
		return llmclient.NewRouterFromConfig(ctx, cfg, logger)
	}
	newVisionClient = func(ctx context.Context, cfg config.LLMRouterConfig, name string, logger *zap.Logger) (schemas.LLMClient, error) {
		return llmclient.NewClientForModel(ctx, cfg, name, logger)
	}
)

// app holds the long-lived components shared by the serve and run commands.
type app struct {
	worker  *browser.Worker
	agent   *agent.Agent
	closers []func() error
	logger  *zap.Logger
}

// buildApp assembles the browser worker, vision pipeline, planner and agent
// loop. channel receives every event the agent emits.
func buildApp(ctx context.Context, cfg *config.Config, channel schemas.HumanChannel, metrics *observability.Metrics, logger *zap.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	llm, err := newLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	a.closers = append(a.closers, llm.Close)

	model, err := buildVisionModel(ctx, cfg, llm, a, logger)
	if err != nil {
		return nil, err
	}
	service := vision.NewService(model, logger, metrics)

	driver, err := newDriver(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	// From here on the worker owns the driver and closes it on Stop.
	a.worker = browser.NewWorker(driver, vision.NewResolver(service, logger), cfg.Browser, logger, metrics)
	a.worker.Start(ctx)

	deps := agent.Dependencies{
		Decider:  planner.NewLLMPlanner(llm, plannerTier(cfg.Agent.PlannerTier), logger),
		Observer: vision.NewObserver(service, logger),
		Browser:  a.worker,
		Channel:  channel,
		Metrics:  metrics,
	}
	if cfg.Agent.NarratorEnabled {
		deps.Narrator = agent.NewLLMNarrator(llm, logger)
		logger.Info("Conversational narrator enabled.")
	}
	a.agent = agent.New(deps, cfg.Agent, logger)
	return a, nil
}

func buildVisionModel(ctx context.Context, cfg *config.Config, llm schemas.LLMClient, a *app, logger *zap.Logger) (schemas.VisionModel, error) {
	switch cfg.Vision.Provider {
	case config.VisionProviderHTTP:
		logger.Info("Using HTTP vision service.", zap.String("endpoint", cfg.Vision.Endpoint))
		return vision.NewHTTPModel(cfg.Vision, logger), nil
	case config.VisionProviderLLM:
		if cfg.Vision.Model == "" {
			logger.Info("Using the powerful LLM tier for vision.")
			return vision.NewLLMModel(llm, schemas.TierPowerful), nil
		}
		client, err := newVisionClient(ctx, cfg.LLM, cfg.Vision.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vision model: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		logger.Info("Using a dedicated LLM for vision.", zap.String("model", cfg.Vision.Model))
		return vision.NewLLMModel(client, schemas.TierPowerful), nil
	default:
		return nil, fmt.Errorf("unsupported vision.provider: %q", cfg.Vision.Provider)
	}
}

func plannerTier(name string) schemas.ModelTier {
	if strings.EqualFold(name, string(schemas.TierFast)) {
		return schemas.TierFast
	}
	return schemas.TierPowerful
}

// close stops the worker, which releases the browser, then closes the LLM
// clients.
func (a *app) close() error {
	if a.worker != nil {
		a.worker.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Errors while shutting down.", zap.Error(err))
		return err
	}
	return nil
}
