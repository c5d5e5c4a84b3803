package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/workflow"
)

// SourcesResult is the JSON payload of the sources command.
type SourcesResult struct {
	Sources    []string   `json:"sources"`
	Components [][]string `json:"components,omitempty"`
}

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	var components bool

	cmd := &cobra.Command{
		Use:           "sources <file>",
		Short:         "List the source steps of a descriptor",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			_, sources, err := loadGraph(f, args[0])
			if err != nil {
				return err
			}

			res := SourcesResult{Sources: nodeIDs(sources)}
			lines := res.Sources
			if components {
				lines = nil
				for _, group := range workflow.Components(sources) {
					ids := nodeIDs(group)
					res.Components = append(res.Components, ids)
					lines = append(lines, strings.Join(ids, " "))
				}
			}
			return f.Success(res, strings.Join(lines, "\n"))
		},
	}

	cmd.Flags().BoolVar(&components, "components", false, "group sources that share downstream steps")
	return cmd
}
