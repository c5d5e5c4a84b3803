package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/workflow/steps"
)

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "kinds",
		Short:         "List the step kinds a payload type may name",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			kinds := steps.Kinds()
			return f.Success(kinds, strings.Join(kinds, "\n"))
		},
	}
}
