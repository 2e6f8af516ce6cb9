// Package opqueue implements the Queue Adapter (spec component C5): the
// admission algorithm that wires observers, resolves conditions into an
// evaluator and its indirect dependencies, registers mutual exclusion,
// and bridges ready operations onto a worker pool.
package opqueue

import (
	"context"
	"sync"

	"opkit/exclusivity"
	"opkit/oplog"
	"opkit/op"
	"opkit/condition"
)

// Delegate receives admission and completion notifications. Every field
// is optional.
type Delegate struct {
	WillAdd     func(q *Queue, o op.Operation)
	WillFinish  func(q *Queue, o op.Operation, errs []error)
	DidFinish   func(q *Queue, o op.Operation, errs []error)
	WillProduce func(q *Queue, parent op.Operation, child op.Operation)
}

// Queue accepts operations, installs the internal observers that keep its
// bookkeeping current, resolves conditions, enforces mutual exclusion, and
// runs each ready operation on its own goroutine, at most maxConcurrent at a
// time when WithMaxConcurrent is set (unbounded otherwise).
type Queue struct {
	ctx         context.Context
	delegate    *Delegate
	exclusivity *exclusivity.Manager
	logger      oplog.Logger
	intent      op.UserIntent
	sem         semaphore

	suspendMu sync.Mutex
	cond      *sync.Cond
	suspended bool

	wg sync.WaitGroup
}

// Option configures a Queue at construction time.
type Option func(*Queue)

func WithContext(ctx context.Context) Option { return func(q *Queue) { q.ctx = ctx } }
func WithDelegate(d Delegate) Option         { return func(q *Queue) { q.delegate = &d } }
func WithMaxConcurrent(n int) Option         { return func(q *Queue) { q.sem = newSemaphore(n) } }
func WithLogger(l oplog.Logger) Option       { return func(q *Queue) { q.logger = l } }
func WithUserIntent(i op.UserIntent) Option  { return func(q *Queue) { q.intent = i } }

// WithSuspended starts the queue with dispatch paused; admission
// (condition evaluation, dependency wiring) proceeds normally, only the
// final Run dispatch is held back until SetSuspended(false). Used by
// opgroup so a group's children don't start running before the group
// itself becomes ready.
func WithSuspended(v bool) Option { return func(q *Queue) { q.suspended = v } }

// WithExclusivityManager overrides the process-wide exclusivity.Default,
// used by tests that need isolation from other tests' categories.
func WithExclusivityManager(m *exclusivity.Manager) Option {
	return func(q *Queue) { q.exclusivity = m }
}

// New constructs a ready-to-use Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		ctx:         context.Background(),
		exclusivity: exclusivity.Default,
		logger:      oplog.Nop{},
	}
	q.cond = sync.NewCond(&q.suspendMu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSuspended pauses or resumes dispatch. Operations already admitted
// keep evaluating conditions and resolving dependencies while suspended;
// only the final Run dispatch is held back.
func (q *Queue) SetSuspended(v bool) {
	q.suspendMu.Lock()
	q.suspended = v
	q.suspendMu.Unlock()
	if !v {
		q.cond.Broadcast()
	}
}

func (q *Queue) Suspended() bool {
	q.suspendMu.Lock()
	defer q.suspendMu.Unlock()
	return q.suspended
}

func (q *Queue) waitWhileSuspended() {
	q.suspendMu.Lock()
	for q.suspended {
		q.cond.Wait()
	}
	q.suspendMu.Unlock()
}

// Wait blocks until every operation added so far has finished. Intended
// for tests and the CLI demo, not for production dispatch logic.
func (q *Queue) Wait() { q.wg.Wait() }

// AddAll submits every operation in ops.
func (q *Queue) AddAll(ops ...op.Operation) {
	for _, o := range ops {
		q.Add(o)
	}
}

// Add runs the admission algorithm for o and hands it to the dispatcher
// (spec.md §4.2).
func (q *Queue) Add(o op.Operation) {
	q.wg.Add(1)
	q.installRelays(o)

	if q.delegate != nil && q.delegate.WillAdd != nil {
		q.delegate.WillAdd(q, o)
	}

	conds := o.Conditions()
	if len(conds) > 0 {
		q.wireConditions(o, conds)
	}

	o.Enqueue()
	q.dispatch(o)
}

func (q *Queue) installRelays(o op.Operation) {
	o.AddObserver(op.Observer{
		DidProduce: func(parent op.Operation, child op.Operation) {
			// The child takes the producer's intent and cancellation state
			// as of this moment; later changes are not propagated.
			child.SetUserIntent(parent.UserIntent())
			if parent.IsCancelled() {
				child.Cancel()
			}
			if q.delegate != nil && q.delegate.WillProduce != nil {
				q.delegate.WillProduce(q, parent, child)
			}
			q.Add(child)
		},
		WillFinish: func(o op.Operation, errs []error) {
			if q.delegate != nil && q.delegate.WillFinish != nil {
				q.delegate.WillFinish(q, o, errs)
			}
		},
		DidFinish: func(o op.Operation, errs []error) {
			if q.delegate != nil && q.delegate.DidFinish != nil {
				q.delegate.DidFinish(q, o, errs)
			}
			q.logger.Debugf("operation %s(%s) finished, cancelled=%v errors=%v", o.Name(), o.ID(), o.IsCancelled(), errs)
			q.wg.Done()
		},
	})
}

// evaluatorBinder is satisfied by any op.Operation embedding *op.Base; it
// is narrower than op.Operation on purpose so only the admission
// algorithm — not ordinary consumers — can graft an evaluator dependency
// onto a target.
type evaluatorBinder interface {
	op.Operation
	SetEvaluatorDependency(dep op.Operation)
	AddIndirectDependency(dep op.Operation)
}

// wireConditions implements spec.md §4.2 step 2: partition conditions by
// mutual exclusion, register with the exclusivity manager, build the
// indirect-dependency set, build and enqueue the evaluator, and bind it
// onto the target.
func (q *Queue) wireConditions(target op.Operation, conds []op.Condition) {
	binder, ok := target.(evaluatorBinder)
	if !ok {
		// Target doesn't support evaluator wiring (a foreign Operation
		// implementation that does not embed *op.Base): its conditions are
		// not evaluated and do not gate execution.
		return
	}

	directDeps := target.Dependencies()
	var previous, indirect []op.Operation

	for _, c := range conds {
		if c.IsMutuallyExclusive() {
			if prev := q.exclusivity.Acquire(target, c.Category()); prev != nil {
				previous = append(previous, prev)
			}
		}
		indirect = append(indirect, c.Dependencies(target)...)
	}

	// Previous category holders are already admitted; they are only waited
	// on (by the indirect dependencies and the evaluator), never re-added.
	for _, id := range indirect {
		for _, p := range previous {
			id.AddDependency(p)
		}
		for _, dd := range directDeps {
			id.AddDependency(dd)
		}
		binder.AddIndirectDependency(id)
		q.Add(id)
	}

	evaluator := condition.NewEvaluator(target, conds)
	// The evaluator must not run until target's own direct dependencies
	// have finished too, not just condition-contributed ones: a condition
	// like NoFailedDependenciesCondition inspects those dependencies'
	// final state, and without this edge the evaluator (having no
	// dependency of its own to wait on) could run concurrently with them.
	for _, dd := range directDeps {
		evaluator.AddDependency(dd)
	}
	for _, id := range indirect {
		evaluator.AddDependency(id)
	}
	for _, p := range previous {
		evaluator.AddDependency(p)
	}
	binder.SetEvaluatorDependency(evaluator)
	q.Add(evaluator)
}

// dispatch waits for o to become ready (or finish without ever becoming
// ready, e.g. a pre-cancelled operation) and then runs it on the worker
// pool, honoring the suspend flag and maxConcurrent hint.
func (q *Queue) dispatch(o op.Operation) {
	go func() {
		select {
		case <-o.Ready():
		case <-o.Done():
			return
		}

		q.waitWhileSuspended()
		q.sem.acquire()
		defer q.sem.release()

		o.Run(q.ctx)
	}()
}
