// Package cli implements opctl, the cobra-based demonstrator for the
// operation runtime: it loads a YAML-declared operation graph and either
// runs it through a real opqueue.Queue or renders its static shape as an
// opdebug tree (spec.md §6, SPEC_FULL.md "CLI demo").
package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"opkit/condition"
	"opkit/op"
	"opkit/opgroup"
	"opkit/retry"
)

// GraphSpec is the declarative shape of a YAML operation graph, the same
// role scriptweaver's own JSON graph file plays for internal/cli.LoadGraphFromFile,
// substituting YAML (see SPEC_FULL.md "Configuration").
type GraphSpec struct {
	Operations []OperationSpec `yaml:"operations"`
}

// OperationSpec declares one top-level operation. Kind selects which
// concrete operation type it builds: "basic" (the default), "group", or
// "retry".
type OperationSpec struct {
	Name              string          `yaml:"name"`
	Kind              string          `yaml:"kind"`
	DependsOn         []string        `yaml:"dependsOn"`
	Conditions        []string        `yaml:"conditions"`
	MutuallyExclusive string          `yaml:"mutuallyExclusive"`
	Work              string          `yaml:"work"`
	Fail              bool            `yaml:"fail"`
	Children          []OperationSpec `yaml:"children"`
	MaxAttempts       int             `yaml:"maxAttempts"`
	FailAttempts      int             `yaml:"failAttempts"`
}

// LoadGraphSpec reads and parses the YAML operation graph at path.
func LoadGraphSpec(path string) (*GraphSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var spec GraphSpec
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	// Reject a second document in the same file (mirrors scriptweaver's
	// own graph loader rejecting trailing JSON).
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, invalidf("trailing document in graph file")
		}
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	if len(spec.Operations) == 0 {
		return nil, invalidf("no operations defined")
	}
	return &spec, nil
}

// Built is the result of constructing a GraphSpec's operations: every
// top-level operation, keyed by name, in declaration order for stable
// iteration (dump, add-to-queue).
type Built struct {
	Names []string
	Ops   map[string]op.Operation
}

// Build validates spec (name uniqueness, unknown references, cycles) and
// constructs the concrete operation graph. It does not enqueue the
// top-level operations; the caller (run or dump) decides what to do with
// the result. A group's children are admitted to the group's own suspended
// private queue when the group is constructed.
func Build(spec *GraphSpec) (*Built, error) {
	if err := validateNames(spec.Operations); err != nil {
		return nil, err
	}
	if err := validateDependencies(spec.Operations); err != nil {
		return nil, err
	}
	if err := detectCycles(spec.Operations); err != nil {
		return nil, err
	}

	built := &Built{Ops: make(map[string]op.Operation, len(spec.Operations))}
	for _, opSpec := range spec.Operations {
		o, err := buildOne(opSpec)
		if err != nil {
			return nil, err
		}
		built.Names = append(built.Names, opSpec.Name)
		built.Ops[opSpec.Name] = o
	}

	for _, opSpec := range spec.Operations {
		target := built.Ops[opSpec.Name]
		for _, dep := range opSpec.DependsOn {
			target.AddDependency(built.Ops[dep])
		}
		for _, cname := range opSpec.Conditions {
			c, err := buildCondition(cname)
			if err != nil {
				return nil, err
			}
			target.AddCondition(c)
		}
		if opSpec.MutuallyExclusive != "" {
			target.AddCondition(condition.MutuallyExclusive(condition.NewTrueCondition(), opSpec.MutuallyExclusive))
		}
	}

	return built, nil
}

func buildOne(spec OperationSpec) (op.Operation, error) {
	switch spec.Kind {
	case "", "basic":
		return buildBasic(spec)
	case "group":
		return buildGroup(spec)
	case "retry":
		return buildRetry(spec)
	default:
		return nil, invalidf("operation %q: unknown kind %q", spec.Name, spec.Kind)
	}
}

func buildBasic(spec OperationSpec) (op.Operation, error) {
	work, err := parseWork(spec.Work)
	if err != nil {
		return nil, invalidf("operation %q: %v", spec.Name, err)
	}
	fail := spec.Fail
	name := spec.Name
	return op.BlockOperation(name, func(ctx context.Context) error {
		if work > 0 {
			select {
			case <-time.After(work):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if fail {
			return fmt.Errorf("simulated failure in %s", name)
		}
		return nil
	}), nil
}

// buildGroup constructs a GroupOperation whose children are the spec's
// inline Children, wired against each other by name the same way
// top-level operations are wired against the full graph (dependsOn within
// a group is scoped to siblings only, spec.md §4.5 "Child lifecycle
// hooks").
func buildGroup(spec OperationSpec) (op.Operation, error) {
	if err := validateNames(spec.Children); err != nil {
		return nil, invalidf("group %q: %v", spec.Name, err)
	}
	children := make(map[string]op.Operation, len(spec.Children))
	var order []string
	for _, cs := range spec.Children {
		c, err := buildOne(cs)
		if err != nil {
			return nil, err
		}
		children[cs.Name] = c
		order = append(order, cs.Name)
	}
	for _, cs := range spec.Children {
		target := children[cs.Name]
		for _, dep := range cs.DependsOn {
			d, ok := children[dep]
			if !ok {
				return nil, unknownOperationf(spec.Name+"."+cs.Name, dep)
			}
			target.AddDependency(d)
		}
		for _, cname := range cs.Conditions {
			c, err := buildCondition(cname)
			if err != nil {
				return nil, err
			}
			target.AddCondition(c)
		}
		if cs.MutuallyExclusive != "" {
			target.AddCondition(condition.MutuallyExclusive(condition.NewTrueCondition(), cs.MutuallyExclusive))
		}
	}

	ordered := make([]op.Operation, 0, len(order))
	for _, n := range order {
		ordered = append(ordered, children[n])
	}
	g := opgroup.NewGroupOperation(spec.Name, ordered...)
	return g, nil
}

// buildRetry constructs a RetryOperation whose generator yields a fresh
// BlockOperation for each attempt, failing the first FailAttempts attempts
// and succeeding afterward, bounded by MaxAttempts (spec.md §4.6).
func buildRetry(spec OperationSpec) (op.Operation, error) {
	work, err := parseWork(spec.Work)
	if err != nil {
		return nil, invalidf("operation %q: %v", spec.Name, err)
	}
	name := spec.Name
	failAttempts := spec.FailAttempts
	generator := func(attempt int, _ []error) (retry.GeneratorResult, bool) {
		payload := op.BlockOperation(fmt.Sprintf("%s#%d", name, attempt+1), func(ctx context.Context) error {
			if work > 0 {
				select {
				case <-time.After(work):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if attempt < failAttempts {
				return fmt.Errorf("simulated failure in %s attempt %d", name, attempt+1)
			}
			return nil
		})
		return retry.GeneratorResult{Operation: payload}, true
	}
	opts := []retry.Option{}
	if spec.MaxAttempts > 0 {
		opts = append(opts, retry.WithMaxCount(spec.MaxAttempts))
	}
	return retry.New(name, generator, opts...), nil
}

func buildCondition(name string) (op.Condition, error) {
	switch name {
	case "true":
		return condition.NewTrueCondition(), nil
	case "false":
		return condition.NewFalseCondition(), nil
	case "noFailedDependencies":
		return condition.NewNoFailedDependenciesCondition(), nil
	default:
		return nil, invalidf("unknown condition %q", name)
	}
}

func parseWork(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func validateNames(specs []OperationSpec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return invalidf("operation with empty name")
		}
		if seen[s.Name] {
			return invalidf("duplicate operation name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func validateDependencies(specs []OperationSpec) error {
	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		names[s.Name] = true
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if !names[dep] {
				return unknownOperationf(s.Name, dep)
			}
		}
	}
	return nil
}

// detectCycles runs a deterministic white/gray/black DFS over the
// dependsOn edges, grounded on scriptweaver's own cycle-detection shape
// (internal/dag's coloring walk) but against names instead of canonical
// indices, since opctl's graphs are small enough that index compaction
// buys nothing.
func detectCycles(specs []OperationSpec) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	deps := make(map[string][]string, len(specs))
	order := make([]string, 0, len(specs))
	for _, s := range specs {
		deps[s.Name] = s.DependsOn
		order = append(order, s.Name)
	}
	color := make(map[string]int, len(specs))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		path = append(path, name)
		for _, dep := range deps[name] {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				cycle := append(append([]string(nil), path...), dep)
				return cyclicDependencyf(cycle)
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range order {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}
