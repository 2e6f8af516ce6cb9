package condition

import (
	"context"
	"sync"

	"opkit/op"
)

// Evaluator is the internal operation synthesized per target to run its
// attached conditions (spec.md §4.4). It finishes with the concatenation
// of every condition's failure, or with no errors if all were satisfied
// or ignored.
type Evaluator struct {
	*op.Base

	target     op.Operation
	conditions []op.Condition
}

// NewEvaluator builds (but does not enqueue) the evaluator for target's
// conditions.
func NewEvaluator(target op.Operation, conditions []op.Condition) *Evaluator {
	e := &Evaluator{target: target, conditions: conditions}
	e.Base = op.NewBase(e, "Evaluator<"+target.Name()+">", e.execute)
	return e
}

func (e *Evaluator) execute(ctx context.Context) {
	if len(e.conditions) == 0 {
		e.Finish(nil)
		return
	}

	var (
		mu      sync.Mutex
		errs    []error
		pending sync.WaitGroup
	)
	pending.Add(len(e.conditions))

	for _, c := range e.conditions {
		c := c
		c.Evaluate(ctx, e.target, func(r op.Result) {
			if r.Status == op.Failed && r.Err != nil {
				mu.Lock()
				errs = append(errs, r.Err)
				mu.Unlock()
			}
			pending.Done()
		})
	}

	pending.Wait()
	e.Finish(errs)
}
