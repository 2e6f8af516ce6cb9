package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"opkit/oplog"
)

// RootOptions holds flags shared by every opctl subcommand.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand builds the opctl root command: "run" executes a
// YAML-declared operation graph against a real opqueue.Queue, "dump"
// renders its static shape as an opdebug tree without running anything.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "opctl",
		Short:         "opctl - operation runtime demonstrator",
		Long:          "Loads a YAML-declared operation graph and runs or inspects it against opkit's operation runtime.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))
	return cmd
}

// loggerFor returns a logging oplog.Logger when verbose is set, otherwise
// a no-op logger (SPEC_FULL.md AMBIENT STACK "Logging").
func loggerFor(opts *RootOptions) oplog.Logger {
	if !opts.Verbose {
		return oplog.Nop{}
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return oplog.NewSlog(slog.New(handler))
}
