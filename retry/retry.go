// Package retry implements the Retry Operation (spec component C9): an
// operation that drives a generator of payload operations through repeated
// attempts, consulting a policy callback and a clock.Strategy-compatible
// delay between them.
package retry

import (
	"context"
	"sync"
	"time"

	"opkit/clock"
	"opkit/op"
)

// GeneratorResult is one payload the Generator recommends: the delay to
// wait before running operation, and an optional hook to configure it
// (e.g. copy state forward from the previous attempt) right before it is
// enqueued.
type GeneratorResult struct {
	Delay     time.Duration
	Operation op.Operation
	Configure func(op.Operation)
}

// Generator yields the next attempt given how many attempts have already
// been made and the errors accumulated so far. Returning ok=false ends the
// retry (spec.md §4.6 "if None, finish with the accumulated errors").
type Generator func(attempt int, historicalErrors []error) (GeneratorResult, bool)

// Info is what a Policy sees about the retry's progress so far.
type Info struct {
	Count            int
	Errors           []error
	HistoricalErrors []error
}

// Decision is a Policy's verdict on the generator's recommended attempt:
// accept it unchanged, override it with a different GeneratorResult, or
// stop the retry outright.
type Decision struct {
	stop     bool
	override *GeneratorResult
}

// Accept carries the generator's recommendation through unchanged.
func Accept() Decision { return Decision{} }

// Override replaces the generator's recommendation with r.
func Override(r GeneratorResult) Decision { return Decision{override: &r} }

// Stop ends the retry after the current accumulated errors, regardless of
// what the generator recommended.
func Stop() Decision { return Decision{stop: true} }

// Policy inspects the retry's progress and the generator's recommendation
// and returns a Decision (spec.md §4.6).
type Policy func(info Info, recommended GeneratorResult) Decision

// RetryOperation drives Generator through successive attempts until one
// finishes without errors, the generator is exhausted, a Policy calls
// Stop, or maxCount attempts have been made.
type RetryOperation struct {
	*op.Base

	generator Generator
	policy    Policy
	maxCount  int
	clk       clock.Clock

	mu               sync.Mutex
	count            int
	lastErrors       []error
	historicalErrors []error
	current          op.Operation
}

// Option configures a RetryOperation at construction time.
type Option func(*RetryOperation)

// WithMaxCount caps the number of attempts. The default, 0, is unbounded.
func WithMaxCount(n int) Option { return func(r *RetryOperation) { r.maxCount = n } }

// WithPolicy installs a Policy consulted before every attempt after the
// first generator call.
func WithPolicy(p Policy) Option { return func(r *RetryOperation) { r.policy = p } }

// WithClock stores c as the retry's Clock. The retry's own scheduling does
// not read it: each attempt's GeneratorResult.Delay is waited out with a
// time.Timer, and no accessor exposes the stored Clock.
func WithClock(c clock.Clock) Option { return func(r *RetryOperation) { r.clk = c } }

// New builds a RetryOperation named name driven by generator.
func New(name string, generator Generator, opts ...Option) *RetryOperation {
	r := &RetryOperation{generator: generator, clk: clock.System{}}
	r.Base = op.NewBase(r, name, r.execute)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Count is the number of attempts actually started so far.
func (r *RetryOperation) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// LastAttemptErrors returns the errors from the most recently finished
// attempt.
func (r *RetryOperation) LastAttemptErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.lastErrors...)
}

// HistoricalErrors returns the union of every attempt's errors so far.
func (r *RetryOperation) HistoricalErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.historicalErrors...)
}

func (r *RetryOperation) execute(ctx context.Context) {
	r.advance(ctx)
}

// advance asks the generator (and, if installed, the policy) for the next
// attempt and schedules it, or finishes the retry outright.
func (r *RetryOperation) advance(ctx context.Context) {
	if r.IsCancelled() {
		r.Finish(r.HistoricalErrors())
		return
	}

	r.mu.Lock()
	attempt := r.count
	lastErrs := append([]error(nil), r.lastErrors...)
	hist := append([]error(nil), r.historicalErrors...)
	r.mu.Unlock()

	if r.maxCount > 0 && attempt >= r.maxCount {
		r.Finish(hist)
		return
	}

	result, ok := r.generator(attempt, hist)
	if !ok {
		r.Finish(hist)
		return
	}

	// The initial attempt (attempt == 0) runs the generator's first output
	// ungated; the policy is only consulted on each subsequent child
	// didFinish (spec.md §4.6).
	if r.policy != nil && attempt > 0 {
		decision := r.policy(Info{Count: attempt, Errors: lastErrs, HistoricalErrors: hist}, result)
		if decision.stop {
			r.Finish(hist)
			return
		}
		if decision.override != nil {
			result = *decision.override
		}
	}

	r.schedule(ctx, result)
}

func (r *RetryOperation) schedule(ctx context.Context, result GeneratorResult) {
	if result.Delay <= 0 {
		r.dispatch(ctx, result)
		return
	}

	timer := time.NewTimer(result.Delay)
	go func() {
		select {
		case <-timer.C:
			r.dispatch(ctx, result)
		case <-ctx.Done():
			timer.Stop()
			r.Finish(r.HistoricalErrors())
		}
	}()
}

// dispatch configures, enqueues, and runs result.Operation, then wires a
// DidFinish observer back into advance (spec.md §4.6 "on each child
// didFinish"). It is its own tiny dispatcher rather than going through an
// opqueue.Queue, the same way opgroup drives its internal barrier and
// finishing operations.
func (r *RetryOperation) dispatch(ctx context.Context, result GeneratorResult) {
	child := result.Operation
	if result.Configure != nil {
		result.Configure(child)
	}

	r.mu.Lock()
	r.current = child
	r.count++
	r.mu.Unlock()

	child.AddObserver(op.Observer{
		DidFinish: func(_ op.Operation, errs []error) {
			r.onAttemptFinished(ctx, errs)
		},
	})
	child.Enqueue()
	go func() {
		select {
		case <-child.Ready():
			child.Run(ctx)
		case <-child.Done():
		}
	}()
}

func (r *RetryOperation) onAttemptFinished(ctx context.Context, errs []error) {
	r.mu.Lock()
	r.lastErrors = append([]error(nil), errs...)
	r.mu.Unlock()

	if r.IsCancelled() {
		r.Finish(r.HistoricalErrors())
		return
	}

	if len(errs) == 0 {
		r.Finish(nil)
		return
	}

	r.mu.Lock()
	r.historicalErrors = append(r.historicalErrors, errs...)
	r.mu.Unlock()

	r.advance(ctx)
}

// Cancel cancels the retry and its in-flight attempt, if any.
func (r *RetryOperation) Cancel() { r.CancelWithErrors(nil) }

// CancelWithErrors cancels the retry and propagates into whatever attempt
// is currently running (spec.md §4.6 "halts the generator").
func (r *RetryOperation) CancelWithErrors(errs []error) {
	r.Base.CancelWithErrors(errs)

	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current == nil {
		return
	}
	if len(errs) > 0 {
		current.CancelWithErrors([]error{&op.ParentCancelled{Errs: errs}})
		return
	}
	current.Cancel()
}
