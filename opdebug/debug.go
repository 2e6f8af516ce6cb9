// Package opdebug implements the debug-dump interface spec.md §6 defines
// as an external collaborator (a DebugSink): a DebugRecord data shape and
// an indented-tree text renderer, grounded on roach88-nysm's goldie-pinned
// plan-dump CLI.
package opdebug

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"opkit/op"
)

// DebugRecord is the data shape spec.md §6 calls for: a description, a
// bag of properties, the names of attached conditions, and the recursive
// shape of dependencies and sub-operations.
type DebugRecord struct {
	Description   string
	Properties    map[string]string
	Conditions    []string
	Dependencies  []DebugRecord
	SubOperations []DebugRecord
}

// Debuggable lets an operation type supply its own DebugRecord in place of
// the generic one Describe builds from the Operation interface alone —
// useful for a type that wants to surface internal fields (a Group's fatal
// errors, a Retry's attempt count) that op.Operation doesn't expose.
type Debuggable interface {
	DebugRecord() DebugRecord
}

// subOperationsProvider is satisfied structurally by opgroup.GroupOperation
// (and anything else exposing its children this way) without opdebug
// importing opgroup, keeping the dependency direction one-way.
type subOperationsProvider interface {
	Operations() []op.Operation
}

// DefaultMaxDepth bounds recursion into dependencies/sub-operations when
// the caller doesn't have a better cap in mind (spec.md §6 "depth cap to
// avoid cycles").
const DefaultMaxDepth = 8

// Describe builds o's DebugRecord, recursing into its dependencies and, if
// it exposes an Operations() []op.Operation method, its children, down to
// maxDepth levels.
func Describe(o op.Operation, maxDepth int) DebugRecord {
	return describe(o, maxDepth, map[string]bool{})
}

func describe(o op.Operation, depth int, seen map[string]bool) DebugRecord {
	if d, ok := o.(Debuggable); ok {
		return d.DebugRecord()
	}

	rec := DebugRecord{
		Description: o.Name(),
		Properties: map[string]string{
			"id":        o.ID(),
			"state":     o.State().String(),
			"cancelled": strconv.FormatBool(o.IsCancelled()),
		},
	}
	for _, c := range o.Conditions() {
		rec.Conditions = append(rec.Conditions, c.Name())
	}

	if depth <= 0 || seen[o.ID()] {
		return rec
	}
	seen[o.ID()] = true

	for _, dep := range o.Dependencies() {
		rec.Dependencies = append(rec.Dependencies, describe(dep, depth-1, seen))
	}
	if sp, ok := o.(subOperationsProvider); ok {
		for _, child := range sp.Operations() {
			if child.ID() == o.ID() {
				continue
			}
			rec.SubOperations = append(rec.SubOperations, describe(child, depth-1, seen))
		}
	}
	return rec
}

// Render renders r as an indented text tree.
func Render(r DebugRecord) string {
	var b strings.Builder
	renderNode(&b, r, 0)
	return b.String()
}

func renderNode(b *strings.Builder, r DebugRecord, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s\n", pad, r.Description)

	keys := make([]string, 0, len(r.Properties))
	for k := range r.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s  %s=%s\n", pad, k, r.Properties[k])
	}

	for _, c := range r.Conditions {
		fmt.Fprintf(b, "%s  condition: %s\n", pad, c)
	}
	for _, d := range r.Dependencies {
		fmt.Fprintf(b, "%s  dependsOn:\n", pad)
		renderNode(b, d, indent+2)
	}
	for _, s := range r.SubOperations {
		fmt.Fprintf(b, "%s  child:\n", pad)
		renderNode(b, s, indent+2)
	}
}
