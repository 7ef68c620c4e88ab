// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/wayfinder-cli/internal/agent"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
	"github.com/xkilldash9x/wayfinder-cli/internal/transport"
)

const metricsNamespace = "wayfinder"

var errWorkerExited = errors.New("navigation worker exited unexpectedly")

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web chat server and browser agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := observability.NewMetrics(metricsNamespace, reg)

			// The hub is the agent's human channel and also drives the
			// controller, so it is bound to the controller afterwards.
			hub := transport.NewHub(nil, cfg.Server.AllowedOrigins, metrics, logger)

			g, ctx := errgroup.WithContext(cmd.Context())
			a, err := buildApp(ctx, cfg, hub, metrics, logger)
			if err != nil {
				return err
			}
			defer a.close()

			controller := agent.NewController(ctx, a.agent, logger)
			hub.SetController(controller)
			server := transport.NewServer(cfg.Server.ListenAddr, hub, controller, reg, logger)

			g.Go(func() error {
				hub.Run(ctx)
				return nil
			})
			g.Go(func() error {
				return server.ListenAndServe(ctx)
			})
			g.Go(func() error {
				return watchWorker(ctx, a.worker.Done(), logger)
			})

			err = g.Wait()
			controller.Wait()
			if err != nil && !isShutdown(ctx, err) {
				return err
			}
			logger.Info("Server stopped.")
			return nil
		},
	}
	cmd.Flags().String("listen", ":5000", "address for the web server")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().Bool("narrator", false, "rephrase status updates with the fast LLM tier")
	return cmd
}

// isShutdown reports whether err is only the result of ctx being canceled.
func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// watchWorker fails the group when the worker exits on its own. An exit caused
// by ctx ending is a normal shutdown.
func watchWorker(ctx context.Context, done <-chan struct{}, logger *zap.Logger) error {
	select {
	case <-done:
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("Navigation worker exited; shutting down.")
		return errWorkerExited
	case <-ctx.Done():
		return nil
	}
}
