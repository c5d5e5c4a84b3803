package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/steps"
)

// ValidationResult is the JSON payload of a successful validate.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Steps   int      `json:"steps"`
	Sources []string `json:"sources"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var strict, payloads bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a descriptor forms a DAG",
		Long: `Materialize a descriptor and report dangling references and cycles.

With --strict, steps that appear in no edge list are rejected.
With --payloads, every step payload is also checked against the step kinds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			var opts []workflow.Option
			if strict {
				opts = append(opts, workflow.Strict())
			}
			d, sources, err := loadGraph(f, args[0], opts...)
			if err != nil {
				return err
			}
			if payloads {
				if err := steps.ValidateGraph(d); err != nil {
					return f.Fail(ExitFailure, ErrCodePayload, err, nil)
				}
			}

			res := ValidationResult{Valid: true, Steps: d.Len(), Sources: nodeIDs(sources)}
			return f.Success(res, fmt.Sprintf("✓ valid: %d step(s), %d source(s)", res.Steps, len(res.Sources)))
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "reject steps missing from the edges map")
	cmd.Flags().BoolVar(&payloads, "payloads", false, "validate step payloads against the step kinds")
	return cmd
}
