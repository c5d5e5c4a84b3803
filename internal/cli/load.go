package cli

import (
	"errors"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/descfile"
)

// loadGraph loads and materializes the descriptor at path, reporting
// failures through f.
func loadGraph(f *OutputFormatter, path string, opts ...workflow.Option) (*workflow.Descriptor, []*workflow.Node, error) {
	d, err := descfile.Load(path)
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeLoad, err, nil)
	}
	f.VerboseLog("loaded %d step(s) from %s", d.Len(), path)

	sources, err := workflow.Materialize(d, opts...)
	if err != nil {
		return d, nil, graphFailure(f, err)
	}
	return d, sources, nil
}

func graphFailure(f *OutputFormatter, err error) error {
	var cycle *workflow.CycleError
	if errors.As(err, &cycle) {
		return f.Fail(ExitFailure, ErrCodeCycle, err, map[string]any{"cycle": cycle.Path})
	}
	return f.Fail(ExitFailure, ErrCodeMalformed, err, nil)
}

func nodeIDs(nodes []*workflow.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids
}
