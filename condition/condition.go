// Package condition implements the built-in Condition types and the
// evaluator operation that runs them (spec component C7). Condition and
// Result are defined in package op to avoid an import cycle (op.Operation
// accepts an op.Condition); this package supplies the concrete
// implementations spec.md §4.4 calls for.
package condition

import (
	"context"
	"errors"
	"fmt"

	"opkit/op"
)

// Errors surfaced by the built-in conditions (spec.md §7).
var (
	ErrFalseCondition        = errors.New("condition always fails")
	ErrBlockFailed           = errors.New("block condition predicate returned false")
	ErrCancelledDependencies = errors.New("one or more dependencies were cancelled")
	ErrFailedDependencies    = errors.New("one or more dependencies failed")
)

// base holds the name/category/mutual-exclusion bookkeeping shared by
// every built-in condition, the way scriptweaver's GraphError centralizes
// its taxonomy's shared fields.
type base struct {
	name        string
	mutExcl     bool
	category    string
}

func (b base) Name() string             { return b.name }
func (b base) IsMutuallyExclusive() bool { return b.mutExcl }

func (b base) Category() string {
	if b.category != "" {
		return b.category
	}
	return b.name
}

func (b base) Dependencies(op.Operation) []op.Operation { return nil }

// TrueCondition always reports Satisfied.
type TrueCondition struct{ base }

func NewTrueCondition() TrueCondition {
	return TrueCondition{base{name: "TrueCondition"}}
}

func (TrueCondition) Evaluate(_ context.Context, _ op.Operation, done func(op.Result)) {
	done(op.Result{Status: op.Satisfied})
}

// FalseCondition always reports Failed.
type FalseCondition struct{ base }

func NewFalseCondition() FalseCondition {
	return FalseCondition{base{name: "FalseCondition"}}
}

func (FalseCondition) Evaluate(_ context.Context, _ op.Operation, done func(op.Result)) {
	done(op.Result{Status: op.Failed, Err: ErrFalseCondition})
}

// BlockCondition is Satisfied iff predicate returns true.
type BlockCondition struct {
	base
	predicate func(target op.Operation) bool
}

func NewBlockCondition(name string, predicate func(target op.Operation) bool) *BlockCondition {
	return &BlockCondition{base: base{name: name}, predicate: predicate}
}

func (c *BlockCondition) Evaluate(_ context.Context, target op.Operation, done func(op.Result)) {
	if c.predicate != nil && c.predicate(target) {
		done(op.Result{Status: op.Satisfied})
		return
	}
	done(op.Result{Status: op.Failed, Err: ErrBlockFailed})
}

// failedDepsReporter lets NoFailedDependenciesCondition walk into a
// opgroup.GroupOperation's public Failed() flag without importing opgroup
// (which itself imports op and would cycle back here through Condition).
// Any operation type — a plain op.BasicOperation or a group — already
// satisfies this via op.Operation.Failed(); this interface documents the
// specific contract spec.md §4.4 calls out ("walks into Group dependencies
// via their public failed flag").
type failedDepsReporter interface {
	Failed() bool
}

// NoFailedDependenciesCondition inspects the target's dependencies at
// evaluation time (not at attach time, since dependencies may still be
// running when the condition is attached).
type NoFailedDependenciesCondition struct{ base }

func NewNoFailedDependenciesCondition() NoFailedDependenciesCondition {
	return NoFailedDependenciesCondition{base{name: "NoFailedDependencies"}}
}

func (c NoFailedDependenciesCondition) Evaluate(_ context.Context, target op.Operation, done func(op.Result)) {
	deps := target.Dependencies()
	var cancelled, failed []string
	for _, d := range deps {
		if d.IsCancelled() {
			cancelled = append(cancelled, d.Name())
			continue
		}
		if fr, ok := d.(failedDepsReporter); ok && fr.Failed() {
			failed = append(failed, d.Name())
		}
	}
	switch {
	case len(cancelled) > 0:
		done(op.Result{Status: op.Failed, Err: fmt.Errorf("%w: %v", ErrCancelledDependencies, cancelled)})
	case len(failed) > 0:
		done(op.Result{Status: op.Failed, Err: fmt.Errorf("%w: %v", ErrFailedDependencies, failed)})
	default:
		done(op.Result{Status: op.Satisfied})
	}
}

// ComposedCondition wraps inner, unioning its direct-dependency set with
// inner's and inheriting inner's mutual-exclusion flag and name unless
// overridden by a transform (Negated, Silent, MutuallyExclusive).
type ComposedCondition struct {
	inner        op.Condition
	transform    func(op.Result) op.Result
	silent       bool
	nameOverride string

	mutExclOverride  bool
	categoryOverride string
}

func NewComposedCondition(inner op.Condition) *ComposedCondition {
	return &ComposedCondition{inner: inner}
}

func (c *ComposedCondition) Name() string {
	if c.nameOverride != "" {
		return c.nameOverride
	}
	return c.inner.Name()
}

func (c *ComposedCondition) IsMutuallyExclusive() bool {
	if c.mutExclOverride {
		return true
	}
	return c.inner.IsMutuallyExclusive()
}

func (c *ComposedCondition) Category() string {
	if c.categoryOverride != "" {
		return c.categoryOverride
	}
	return c.inner.Category()
}

func (c *ComposedCondition) Dependencies(target op.Operation) []op.Operation {
	if c.silent {
		return nil
	}
	return c.inner.Dependencies(target)
}

func (c *ComposedCondition) Evaluate(ctx context.Context, target op.Operation, done func(op.Result)) {
	c.inner.Evaluate(ctx, target, func(r op.Result) {
		if c.transform != nil {
			r = c.transform(r)
		}
		done(r)
	})
}

// Negated inverts the inner condition's result: Satisfied becomes Failed
// (with ErrRequirementNotSatisfied) and Failed becomes Satisfied. Ignored
// passes through unchanged.
func Negated(inner op.Condition) *ComposedCondition {
	c := NewComposedCondition(inner)
	c.nameOverride = "Not<" + inner.Name() + ">"
	c.transform = func(r op.Result) op.Result {
		switch r.Status {
		case op.Satisfied:
			return op.Result{Status: op.Failed, Err: ErrRequirementNotSatisfied}
		case op.Failed:
			return op.Result{Status: op.Satisfied}
		default:
			return r
		}
	}
	return c
}

// Silent drops inner's indirect dependencies while preserving its
// evaluation semantics, for conditions whose prerequisites should not
// themselves be scheduled (e.g. a condition reused across many targets
// whose prerequisite has already run for a sibling).
func Silent(inner op.Condition) *ComposedCondition {
	c := NewComposedCondition(inner)
	c.nameOverride = "Silent<" + inner.Name() + ">"
	c.silent = true
	return c
}

// MutuallyExclusive wraps inner so the exclusivity manager serializes it
// (and every other operation carrying a condition in the same category)
// process-wide under category, regardless of whether inner itself declares
// mutual exclusion (spec.md §4.3).
func MutuallyExclusive(inner op.Condition, category string) *ComposedCondition {
	c := NewComposedCondition(inner)
	c.nameOverride = "MutuallyExclusive<" + inner.Name() + ">"
	c.mutExclOverride = true
	c.categoryOverride = category
	return c
}

// ErrRequirementNotSatisfied is the failure Negated reports when its inner
// condition was itself satisfied (spec.md §7 "RequirementNotSatisfied (for
// composed auto-injection)").
var ErrRequirementNotSatisfied = errors.New("negated requirement was satisfied")
