// Package opgroup implements the Group Operation (spec component C8): an
// operation that runs a bag of children on a private queue and finishes
// only once a race-free CanFinish barrier confirms no child is still being
// added concurrently with teardown.
package opgroup

import (
	"context"
	"sync"

	"opkit/op"
	"opkit/opqueue"
)

// GroupOperation runs children on a private opqueue.Queue and finishes once
// every child — including any produced at runtime — has finished (spec.md
// §4.5).
type GroupOperation struct {
	*op.Base

	name  string
	queue *opqueue.Queue

	mu               sync.Mutex
	cond             *sync.Cond
	operations       []op.Operation
	adding           int
	canFinish        *barrierOperation
	isGroupFinishing bool

	fatalErrors       []error
	attemptedRecovery map[string][]error

	finishingOp *op.BasicOperation

	// WillAddChild, when set, is notified synchronously for every child
	// registered with the group, whether supplied up front, added later via
	// AddOperations, or produced at runtime.
	WillAddChild func(child op.Operation)
	// WillAttemptRecoveryFromErrors, when set, is consulted for every child
	// that finishes with errors. Returning true suppresses those errors from
	// the group's fatalErrors; returning false (the default when unset)
	// makes them fatal.
	WillAttemptRecoveryFromErrors func(child op.Operation, errs []error) bool
	// WillFinishOperation, when set, can inspect or replace the accumulated
	// fatal errors immediately before the group finishes.
	WillFinishOperation func(errs []error) []error
}

// NewGroupOperation builds a group named name with an initial set of
// children (which may be empty).
func NewGroupOperation(name string, children ...op.Operation) *GroupOperation {
	g := &GroupOperation{
		name:              name,
		attemptedRecovery: make(map[string][]error),
	}
	g.cond = sync.NewCond(&g.mu)
	g.Base = op.NewBase(g, name, g.execute)
	g.canFinish = newBarrierOperation(g)
	g.finishingOp = op.NewBasicOperation("FinishingOperation<"+name+">", g.executeFinishing)

	g.queue = opqueue.New(
		opqueue.WithSuspended(true),
		opqueue.WithDelegate(opqueue.Delegate{
			WillFinish:  g.onChildWillFinish,
			DidFinish:   g.onChildDidFinish,
			WillProduce: g.onWillProduce,
		}),
	)

	if len(children) > 0 {
		g.AddOperations(children...)
	}
	return g
}

// Operations returns a snapshot of every child the group has ever been
// given, including produced grandchildren, for debug output and tests.
func (g *GroupOperation) Operations() []op.Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]op.Operation(nil), g.operations...)
}

// FatalErrors returns the errors accumulated from children whose errors
// were not recovered.
func (g *GroupOperation) FatalErrors() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.fatalErrors...)
}

// AddOperations submits more children. It is a no-op for any call that
// arrives after the group has begun finishing (spec.md §4.5 "blocking
// further adds").
func (g *GroupOperation) AddOperations(children ...op.Operation) {
	var admitted []op.Operation
	for _, c := range children {
		if g.registerChild(c) {
			admitted = append(admitted, c)
		}
	}
	if len(admitted) > 0 {
		g.queue.AddAll(admitted...)
	}
}

// registerChild appends c to the operations list and wires it as a
// best-effort dependency of the current CanFinish barrier. It reports
// whether the group was still accepting children.
func (g *GroupOperation) registerChild(c op.Operation) bool {
	g.mu.Lock()
	if g.isGroupFinishing {
		g.mu.Unlock()
		return false
	}
	g.adding++
	barrier := g.canFinish
	g.mu.Unlock()

	if g.WillAddChild != nil {
		g.WillAddChild(c)
	}
	// Best-effort: has no effect if barrier already passed Enqueue, in
	// which case the barrier's own rotation protocol (barrier.go) picks up
	// c from the live operations list instead.
	barrier.AddDependency(c)

	g.mu.Lock()
	g.operations = append(g.operations, c)
	g.adding--
	g.mu.Unlock()
	g.cond.Broadcast()
	return true
}

func (g *GroupOperation) onWillProduce(_ *opqueue.Queue, _ op.Operation, child op.Operation) {
	admitted := g.registerChild(child)
	if !admitted {
		child.Cancel()
		return
	}
	if g.IsCancelled() {
		child.Cancel()
	}
}

func (g *GroupOperation) onChildWillFinish(_ *opqueue.Queue, child op.Operation, errs []error) {
	if len(errs) == 0 {
		return
	}
	recovering := g.WillAttemptRecoveryFromErrors != nil && g.WillAttemptRecoveryFromErrors(child, errs)

	g.mu.Lock()
	defer g.mu.Unlock()
	if recovering {
		g.attemptedRecovery[child.ID()] = errs
		return
	}
	g.fatalErrors = append(g.fatalErrors, errs...)
}

func (g *GroupOperation) onChildDidFinish(_ *opqueue.Queue, child op.Operation, _ []error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attemptedRecovery, child.ID())
}

// execute starts the CanFinish barrier and the finishing operation, then
// lifts the private queue's suspension so children (already admitted in
// the constructor or via AddOperations) begin running.
func (g *GroupOperation) execute(ctx context.Context) {
	g.mu.Lock()
	initial := g.canFinish
	g.mu.Unlock()

	runWhenReady(ctx, initial)
	runWhenReady(ctx, g.finishingOp)
	g.queue.SetSuspended(false)
}

// executeFinishing waits for the barrier chain to settle on
// isGroupFinishing and then finishes the group with its accumulated fatal
// errors.
func (g *GroupOperation) executeFinishing(ctx context.Context, finish func(errs []error)) {
	g.waitForBarrierChain()

	g.mu.Lock()
	errs := append([]error(nil), g.fatalErrors...)
	g.mu.Unlock()

	if g.WillFinishOperation != nil {
		errs = g.WillFinishOperation(errs)
	}

	finish(nil)
	g.Finish(errs)
}

// waitForBarrierChain follows CanFinish through however many rotations it
// takes to reach isGroupFinishing=true. It re-reads g.canFinish after each
// wait rather than capturing it once, because a rotation can install a new
// barrier while this call is asleep (spec.md §4.5 "double-barrier
// rationale").
func (g *GroupOperation) waitForBarrierChain() {
	for {
		g.mu.Lock()
		current := g.canFinish
		g.mu.Unlock()

		<-current.Done()

		g.mu.Lock()
		done := g.isGroupFinishing
		g.mu.Unlock()
		if done {
			return
		}
	}
}

// Cancel cancels the group and every child it has ever registered.
func (g *GroupOperation) Cancel() { g.CancelWithErrors(nil) }

// CancelWithErrors cancels the group and propagates to every registered
// child, wrapping errs as op.ParentCancelled when there are any (spec.md
// §4.5 "Cancellation").
func (g *GroupOperation) CancelWithErrors(errs []error) {
	g.Base.CancelWithErrors(errs)

	g.mu.Lock()
	children := append([]op.Operation(nil), g.operations...)
	g.mu.Unlock()

	for _, c := range children {
		if len(errs) > 0 {
			c.CancelWithErrors([]error{&op.ParentCancelled{Errs: errs}})
			continue
		}
		c.Cancel()
	}
}

// runWhenReady enqueues o and runs it on its own goroutine once ready,
// mirroring opqueue's dispatcher for the group's two internal operations,
// which are never submitted to any opqueue.Queue.
func runWhenReady(ctx context.Context, o op.Operation) {
	o.Enqueue()
	go func() {
		select {
		case <-o.Ready():
			o.Run(ctx)
		case <-o.Done():
		}
	}()
}
