package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opkit/opdebug"
)

func newDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <graph.yaml>",
		Short: "Render a YAML-declared operation graph as an indented debug tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpGraph(cmd, args[0], rootOpts)
		},
	}
	return cmd
}

// dumpGraph builds the graph's operations (without enqueuing the top-level
// ones; group children sit in their group's suspended queue) and
// renders each as an opdebug.DebugRecord tree, one per top-level
// operation in declaration order (SPEC_FULL.md "opdebug tree renderer").
func dumpGraph(cmd *cobra.Command, path string, rootOpts *RootOptions) error {
	spec, err := LoadGraphSpec(path)
	if err != nil {
		return exitErrorf(ExitGraphError, err)
	}
	built, err := Build(spec)
	if err != nil {
		return exitErrorf(ExitGraphError, err)
	}

	for _, name := range built.Names {
		rec := opdebug.Describe(built.Ops[name], opdebug.DefaultMaxDepth)
		fmt.Fprint(cmd.OutOrStdout(), opdebug.Render(rec))
	}
	return nil
}
