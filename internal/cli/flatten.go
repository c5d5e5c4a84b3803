package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/workflow"
)

// NewFlattenCommand creates the flatten command.
func NewFlattenCommand(rootOpts *RootOptions) *cobra.Command {
	var from []string

	cmd := &cobra.Command{
		Use:   "flatten <file>",
		Short: "Print the descriptor reachable from the given steps",
		Long: `Materialize a descriptor and flatten it back to its wire form.

Without --from every source is used, which reproduces the whole graph.
With --from only the steps reachable from the named steps are printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			_, sources, err := loadGraph(f, args[0])
			if err != nil {
				return err
			}

			entries := sources
			if len(from) > 0 {
				entries = make([]*workflow.Node, 0, len(from))
				for _, id := range from {
					n := workflow.Find(sources, id)
					if n == nil {
						return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Errorf("unknown step %q", id), nil)
					}
					entries = append(entries, n)
				}
			}

			flat := workflow.Flatten(entries...)
			text, err := json.MarshalIndent(flat, "", "  ")
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeLoad, err, nil)
			}
			return f.Success(flat, string(text))
		},
	}

	cmd.Flags().StringSliceVar(&from, "from", nil, "entry step ids (default: all sources)")
	return cmd
}
