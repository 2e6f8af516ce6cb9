package cli

import (
	"errors"
	"fmt"
	"io"
)

// Execute runs opctl with args (excluding argv[0]), writing command output
// to stdout/stderr, and returns the process exit code. It is the single
// entrypoint cmd/opctl's main and this package's own tests share, so a
// test never needs a subprocess to observe an exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, err)
	return ExitInternalError
}
