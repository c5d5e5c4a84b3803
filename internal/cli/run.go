package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/runner"
)

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Completed []string `json:"completed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		timeout  time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a descriptor locally",
		Long: `Materialize a descriptor and execute every step once, after all of its
predecessors. Each step payload is decoded and logged to stderr.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			_, sources, err := loadGraph(f, args[0], workflow.WithRunFunc(runner.LogStep))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			ctx = logging.WithLogger(ctx, logging.New(cmd.ErrOrStderr(), logLevel, "text"))

			completed, err := runner.Execute(ctx, sources)
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeRun, err, RunResult{Completed: completed})
			}
			return f.Success(RunResult{Completed: completed},
				fmt.Sprintf("✓ completed %d step(s): %s", len(completed), strings.Join(completed, " ")))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long (0 disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "step log level (debug|info|warn|error)")
	return cmd
}
