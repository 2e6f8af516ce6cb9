package cli

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph loading and validation, same sentinel-plus-
// wrapping-struct shape op.ErrProduceTooLate/op.ParentCancelled use.
var (
	ErrInvalidGraph    = errors.New("invalid operation graph")
	ErrCyclicDependency = errors.New("cyclic dependency")
	ErrUnknownOperation = errors.New("reference to unknown operation")
)

// GraphError wraps a graph-loading or graph-validation failure with a
// human-readable message.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func unknownOperationf(from, to string) error {
	return &GraphError{Kind: ErrUnknownOperation, Msg: fmt.Sprintf("%s depends on undefined operation %q", from, to)}
}

func cyclicDependencyf(path []string) error {
	return &GraphError{Kind: ErrCyclicDependency, Msg: strings.Join(path, " -> ")}
}

// ExitError pairs an error with the process exit code it should produce,
// so a cobra RunE can report a semantic failure class without calling
// os.Exit itself (that stays in cmd/opctl's main; Execute turns an
// ExitError into the exit code it returns).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitErrorf(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}
