// Package op implements the operation state machine and observer bus
// (spec components C3 and C4): the pending -> ready -> executing ->
// finishing -> finished lifecycle, dependency-readiness gating,
// cancellation, and produced-operation plumbing. It is deliberately the
// only package in this module with no import of opqueue, opgroup, retry,
// or condition, so that every one of those packages can depend on op
// without a cycle — the capability interface (Operation) and the
// Condition interface it accepts both live here.
package op

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Operation is the capability interface every concrete operation type
// (BasicOperation, condition.Evaluator, opgroup.GroupOperation,
// retry.RetryOperation) satisfies by embedding *Base. It is the consumer
// surface from spec.md §6.
type Operation interface {
	ID() string
	Name() string
	State() State
	IsCancelled() bool
	Errors() []error
	Failed() bool
	Succeeded() bool
	UserIntent() UserIntent
	SetUserIntent(UserIntent)

	AddDependency(dep Operation)
	RemoveDependency(dep Operation)
	Dependencies() []Operation

	AddObserver(o Observer)
	AddCondition(c Condition)
	Conditions() []Condition

	Cancel()
	CancelWithErrors(errs []error)

	Finish(errs []error)
	Produce(child Operation) error

	// Ready closes exactly once, when the operation has satisfied its
	// dependencies and conditions (or been cancelled) and is eligible to
	// execute.
	Ready() <-chan struct{}
	// Done closes exactly once, when the operation reaches StateFinished.
	Done() <-chan struct{}

	// Enqueue transitions initialized -> pending and begins waiting on
	// direct dependencies in the background. A Queue calls this exactly
	// once per operation, after wiring any evaluator dependency.
	Enqueue()
	// Run executes the operation's work. A Queue's dispatcher calls this
	// once Ready() has closed.
	Run(ctx context.Context)
}

// Base is the state-machine struct concrete operation types embed (spec.md
// §9: "a state-machine struct used by concrete variants via composition").
// All of Base's mutable state lives behind a single mutex rather than a
// cell.Cell per field, because the invariants in spec.md §3 (e.g. "ready
// requires all dependencies finished AND conditions satisfied") span
// multiple fields and must be checked atomically. This is spec.md §5's
// "equivalent primitives" allowance, not an application of cell.Cell:
// opqueue and exclusivity also reach for a sync.Mutex/actor goroutine of
// their own rather than cell.Cell, for the same reason (see DESIGN.md).
type Base struct {
	self Operation

	id   string
	name string

	executor func(ctx context.Context)

	mu             sync.Mutex
	state          State
	cancelled      bool
	finishStarted  bool
	errs           []error
	deps           []Operation
	indirectDeps   []Operation
	evaluatorDep   Operation
	conditions     []Condition
	intent         UserIntent
	producedFrozen bool
	cancelFunc     context.CancelFunc

	obs bus

	readyCh      chan struct{}
	readyClosed  bool
	finishedCh   chan struct{}
	finishClosed bool
}

// NewBase constructs a Base for self, which must be the concrete operation
// embedding this Base (the "late-bound self" pattern: self is captured so
// observer callbacks receive the concrete operation, not *Base). execute is
// invoked on the ready -> executing transition; the concrete type is
// responsible for eventually calling Finish.
func NewBase(self Operation, name string, execute func(ctx context.Context)) *Base {
	return &Base{
		self:       self,
		id:         uuid.NewString(),
		name:       name,
		executor:   execute,
		state:      StateInitialized,
		readyCh:    make(chan struct{}),
		finishedCh: make(chan struct{}),
	}
}

func (b *Base) ID() string   { return b.id }
func (b *Base) Name() string { return b.name }

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) IsCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

func (b *Base) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}

func (b *Base) Failed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateFinished && len(b.errs) > 0
}

func (b *Base) Succeeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateFinished && !b.cancelled && len(b.errs) == 0
}

func (b *Base) UserIntent() UserIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intent
}

func (b *Base) SetUserIntent(i UserIntent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intent = i
}

// AddDependency records op as a direct dependency. It has effect only
// before the operation has been enqueued: dependencies are snapshotted
// once at Enqueue time (spec.md §8 property 2).
func (b *Base) AddDependency(dep Operation) {
	if dep == nil || dep.ID() == b.id {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.deps {
		if d.ID() == dep.ID() {
			return
		}
	}
	b.deps = append(b.deps, dep)
}

func (b *Base) RemoveDependency(dep Operation) {
	if dep == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.deps {
		if d.ID() == dep.ID() {
			b.deps = append(b.deps[:i], b.deps[i+1:]...)
			return
		}
	}
}

func (b *Base) Dependencies() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Operation(nil), b.deps...)
}

// addIndirectDependency records op as a condition-contributed prerequisite,
// for debug/introspection only; it does not participate in readiness
// gating directly (the evaluator depends on it instead, see
// SetEvaluatorDependency).
func (b *Base) addIndirectDependency(dep Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indirectDeps = append(b.indirectDeps, dep)
}

func (b *Base) IndirectDependencies() []Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Operation(nil), b.indirectDeps...)
}

// AddIndirectDependency is the exported form used by package opqueue when
// wiring condition-contributed prerequisites onto a target operation.
func (b *Base) AddIndirectDependency(dep Operation) { b.addIndirectDependency(dep) }

// SetEvaluatorDependency wires the internal evaluator operation
// synthesized by a Queue for this operation's conditions. It must be
// called before Enqueue.
func (b *Base) SetEvaluatorDependency(dep Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluatorDep = dep
}

func (b *Base) AddObserver(o Observer) {
	b.mu.Lock()
	b.obs.add(o)
	b.mu.Unlock()
	if o.DidAttach != nil {
		o.DidAttach(b.self)
	}
}

// AddCondition attaches c, which must happen before the operation is
// enqueued: a Queue reads Conditions() once, at admission time, to build
// the evaluator.
func (b *Base) AddCondition(c Condition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conditions = append(b.conditions, c)
}

func (b *Base) Conditions() []Condition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Condition(nil), b.conditions...)
}

func (b *Base) Cancel() { b.CancelWithErrors(nil) }

// CancelWithErrors sets the sticky cancelled flag, fans out
// willCancel/didCancel, and — if the operation is in pending,
// evaluatingConditions, or ready — short-circuits it straight to
// finishing without invoking execute (spec.md §4.1). Idempotent: a second
// call is a no-op (spec.md §8 property 7).
func (b *Base) CancelWithErrors(errs []error) {
	b.mu.Lock()
	if b.cancelled || b.state == StateFinishing || b.state == StateFinished {
		b.mu.Unlock()
		return
	}
	b.cancelled = true
	curState := b.state
	cancelFn := b.cancelFunc
	if curState == StatePending || curState == StateEvaluatingConditions || curState == StateReady {
		// Close the ready -> executing door before releasing the lock: a
		// concurrent dispatcher Run() call only proceeds past its own
		// state == StateReady check under this same mutex, so once this
		// runs there is no window left for Run to observe StateReady and
		// invoke execute (spec.md §4.1).
		b.state = StateFinishing
	}
	b.mu.Unlock()

	// An operation currently executing isn't short-circuited below (only
	// pending/evaluatingConditions/ready are); cancelling its context is
	// how a still-running executor observes cancellation and calls Finish
	// on its own.
	if cancelFn != nil {
		cancelFn()
	}

	b.obs.willCancel(b.self, errs)

	b.mu.Lock()
	if len(errs) > 0 {
		b.errs = append(b.errs, errs...)
	}
	b.mu.Unlock()

	b.obs.didCancel(b.self, errs)

	switch curState {
	case StatePending, StateEvaluatingConditions, StateReady:
		b.Finish(nil)
	}
}

// Finish is the sole path into the finishing/finished states, whether
// called by a subclass's execute hook on completion or by CancelWithErrors
// short-circuiting unstarted work. It is idempotent past the first call.
func (b *Base) Finish(errs []error) {
	b.mu.Lock()
	if b.finishStarted {
		b.mu.Unlock()
		return
	}
	b.finishStarted = true
	if len(errs) > 0 {
		b.errs = append(b.errs, errs...)
	}
	b.state = StateFinishing
	willErrs := append([]error(nil), b.errs...)
	b.mu.Unlock()

	b.obs.willFinish(b.self, willErrs)

	b.mu.Lock()
	b.state = StateFinished
	b.producedFrozen = true
	finalErrs := append([]error(nil), b.errs...)
	if !b.finishClosed {
		b.finishClosed = true
		close(b.finishedCh)
	}
	b.mu.Unlock()

	b.obs.didFinish(b.self, finalErrs)
}

// Produce routes child to whatever queue is managing this operation via
// the DidProduce observer. It is rejected once the operation has reached
// StateFinished (spec.md §8 property 8).
func (b *Base) Produce(child Operation) error {
	b.mu.Lock()
	if b.producedFrozen {
		b.mu.Unlock()
		return ErrProduceTooLate
	}
	b.mu.Unlock()
	b.obs.didProduce(b.self, child)
	return nil
}

func (b *Base) Ready() <-chan struct{} { return b.readyCh }
func (b *Base) Done() <-chan struct{}  { return b.finishedCh }

// Enqueue transitions initialized -> pending and starts waiting on direct
// dependencies in the background. Must be called exactly once, and after
// SetEvaluatorDependency if the operation has conditions.
func (b *Base) Enqueue() {
	b.mu.Lock()
	if b.state != StateInitialized {
		b.mu.Unlock()
		return
	}
	b.state = StatePending
	depsSnapshot := append([]Operation(nil), b.deps...)
	b.mu.Unlock()

	go b.awaitDirectDependencies(depsSnapshot)
}

func (b *Base) awaitDirectDependencies(deps []Operation) {
	for _, d := range deps {
		<-d.Done()
	}

	b.mu.Lock()
	if b.state != StatePending {
		b.mu.Unlock()
		return
	}
	if b.cancelled {
		b.mu.Unlock()
		b.Finish(nil)
		return
	}
	hasConditions := len(b.conditions) > 0
	evaluator := b.evaluatorDep
	b.mu.Unlock()

	if !hasConditions {
		b.becomeReady()
		return
	}

	b.mu.Lock()
	b.state = StateEvaluatingConditions
	b.mu.Unlock()

	if evaluator == nil {
		b.becomeReady()
		return
	}
	go b.awaitEvaluator(evaluator)
}

func (b *Base) awaitEvaluator(evaluator Operation) {
	<-evaluator.Done()
	if evaluator.Failed() {
		b.CancelWithErrors(evaluator.Errors())
		return
	}
	b.becomeReady()
}

func (b *Base) becomeReady() {
	b.mu.Lock()
	if b.state == StateFinishing || b.state == StateFinished {
		b.mu.Unlock()
		return
	}
	if b.cancelled {
		b.mu.Unlock()
		b.Finish(nil)
		return
	}
	b.state = StateReady
	if !b.readyClosed {
		b.readyClosed = true
		close(b.readyCh)
	}
	b.mu.Unlock()
}

// Run executes the operation's work once dispatched by a Queue. It is a
// no-op unless the operation is currently StateReady, which makes it safe
// to call from a select alongside Done() without an extra guard.
func (b *Base) Run(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateReady {
		b.mu.Unlock()
		return
	}
	b.state = StateExecuting
	execCtx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel
	alreadyCancelled := b.cancelled
	b.mu.Unlock()

	if alreadyCancelled {
		cancel()
	}

	b.obs.willExecute(b.self)
	b.executor(execCtx)
}
