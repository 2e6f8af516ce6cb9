package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"opkit/op"
	"opkit/opqueue"
)

// Exit codes opctl returns, mirroring scriptweaver's semantic-exit-code
// convention (a dedicated code per failure class rather than a bare 1).
const (
	ExitSuccess         = 0
	ExitOperationFailed = 1
	ExitGraphError      = 2
	ExitInternalError   = 3
)

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Run a YAML-declared operation graph to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args[0], maxConcurrent, rootOpts)
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "cap on concurrently executing operations (0 = unbounded)")
	return cmd
}

func runGraph(cmd *cobra.Command, path string, maxConcurrent int, rootOpts *RootOptions) error {
	spec, err := LoadGraphSpec(path)
	if err != nil {
		return exitErrorf(ExitGraphError, err)
	}
	logger := loggerFor(rootOpts)
	built, err := Build(spec)
	if err != nil {
		return exitErrorf(ExitGraphError, err)
	}

	opts := []opqueue.Option{opqueue.WithLogger(logger)}
	if maxConcurrent > 0 {
		opts = append(opts, opqueue.WithMaxConcurrent(maxConcurrent))
	}
	q := opqueue.New(opts...)

	ordered := make([]op.Operation, 0, len(built.Names))
	for _, name := range built.Names {
		ordered = append(ordered, built.Ops[name])
	}
	q.AddAll(ordered...)
	q.Wait()

	return report(cmd, built)
}

// report prints one line per top-level operation, sorted for determinism,
// and returns an ExitOperationFailed ExitError if any operation finished
// with errors or cancelled.
func report(cmd *cobra.Command, built *Built) error {
	names := append([]string(nil), built.Names...)
	sort.Strings(names)

	anyFailed := false
	for _, name := range names {
		o := built.Ops[name]
		status := "ok"
		switch {
		case o.IsCancelled():
			status = "cancelled"
			anyFailed = true
		case o.Failed():
			status = "failed"
			anyFailed = true
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", name, status)
		for _, e := range o.Errors() {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %v\n", e)
		}
	}

	if anyFailed {
		return exitErrorf(ExitOperationFailed, fmt.Errorf("one or more operations did not succeed"))
	}
	return nil
}
