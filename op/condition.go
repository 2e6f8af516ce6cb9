package op

import "context"

// ResultStatus is the outcome of evaluating a Condition.
type ResultStatus int

const (
	Satisfied ResultStatus = iota
	Failed
	Ignored
)

// Result is what a Condition's evaluation produces (spec.md §3).
type Result struct {
	Status ResultStatus
	Err    error
}

// Condition is a pre-flight predicate attached to an operation (spec.md
// §4.4). A Condition is not itself an Operation: the per-target evaluator
// operation (condition.Evaluator) runs every condition attached to a
// target. The interface lives in
// package op, not package condition, so that Operation.AddCondition does
// not create an import cycle between op and the condition package that
// implements it.
type Condition interface {
	// Name identifies the condition for debug output and error messages.
	Name() string
	// IsMutuallyExclusive reports whether the condition's category should
	// be serialized process-wide through the exclusivity manager.
	IsMutuallyExclusive() bool
	// Category defaults to the condition type's symbolic name when the
	// condition does not need a narrower one.
	Category() string
	// Dependencies returns auxiliary operations the evaluator must run,
	// and wait on, before this condition is evaluated against target.
	Dependencies(target Operation) []Operation
	// Evaluate runs the condition's async predicate and reports the result
	// through done exactly once.
	Evaluate(ctx context.Context, target Operation, done func(Result))
}
