// File: cmd/run.go
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wayfinder-cli/internal/agent"
	"github.com/xkilldash9x/wayfinder-cli/internal/observability"
	"github.com/xkilldash9x/wayfinder-cli/internal/transport"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run a single task interactively in the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			ctx := cmd.Context()

			console := transport.NewConsole(cmd.OutOrStdout(), logger)
			a, err := buildApp(ctx, cfg, console, nil, logger)
			if err != nil {
				return err
			}
			defer a.close()

			controller := agent.NewController(ctx, a.agent, logger)
			task, err := controller.StartTask(strings.Join(args, " "))
			if err != nil {
				return err
			}
			go func() {
				if err := console.ReadReplies(ctx, cmd.InOrStdin(), controller); err != nil && ctx.Err() == nil {
					logger.Warn("Stopped reading replies.", zap.Error(err))
				}
			}()

			select {
			case <-task.Done():
			case <-ctx.Done():
			}
			controller.Wait()
			logger.Info("Task ended.", zap.String("task_id", task.ID), zap.String("result", task.Result()))
			return nil
		},
	}
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().Bool("narrator", false, "rephrase status updates with the fast LLM tier")
	return cmd
}
