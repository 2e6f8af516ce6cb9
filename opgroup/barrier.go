package opgroup

import (
	"context"

	"opkit/op"
)

// barrierOperation is the CanFinish sentinel (spec.md §4.5): a zero-work
// operation whose execute re-validates that no new child arrived while it
// was becoming ready, rotating to a fresh instance when one did.
type barrierOperation struct {
	*op.Base
	group *GroupOperation
}

func newBarrierOperation(g *GroupOperation) *barrierOperation {
	b := &barrierOperation{group: g}
	b.Base = op.NewBase(b, "CanFinish<"+g.name+">", b.execute)
	return b
}

// execute implements the three-step protocol from spec.md §4.5: wait out
// any in-flight AddOperations call, then decide under the same lock
// whether every known child has finished.
func (b *barrierOperation) execute(ctx context.Context) {
	g := b.group

	g.mu.Lock()
	for g.adding > 0 {
		g.cond.Wait()
	}

	var unfinished []op.Operation
	for _, o := range g.operations {
		if o.State() != op.StateFinished {
			unfinished = append(unfinished, o)
		}
	}

	if len(unfinished) > 0 {
		next := newBarrierOperation(g)
		g.canFinish = next
		g.mu.Unlock()

		for _, o := range unfinished {
			next.AddDependency(o)
		}
		runWhenReady(ctx, next)
		b.Finish(nil)
		return
	}

	g.isGroupFinishing = true
	g.mu.Unlock()
	b.Finish(nil)
}
