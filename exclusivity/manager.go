// Package exclusivity implements the process-wide mutual-exclusion
// registry (spec component C6): a category -> FIFO-of-holders map
// guarded by a single-threaded actor, so that acquire/release ordering
// for one category is never reordered relative to the requests that
// produced it (spec.md §4.3).
package exclusivity

import (
	"opkit/op"
)

// request is a unit of work submitted to the manager's serial actor
// goroutine, the same "single-threaded actor" pattern spec.md §9
// recommends for the singleton.
type request struct {
	fn   func()
	done chan struct{}
}

// Manager serializes operations by category. The zero Manager is not
// ready to use; call New. Most consumers should use the process-wide
// Default instance rather than constructing their own, but tests
// construct private Managers to avoid cross-test interference — the
// "test-only teardown" spec.md §9 calls for.
type Manager struct {
	categories map[string][]op.Operation
	reqs       chan request
	closed     chan struct{}
}

// New starts a Manager's serial actor goroutine.
func New() *Manager {
	m := &Manager{
		categories: make(map[string][]op.Operation),
		reqs:       make(chan request),
		closed:     make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for {
		select {
		case r := <-m.reqs:
			r.fn()
			close(r.done)
		case <-m.closed:
			return
		}
	}
}

// do runs fn on the actor goroutine and blocks until it completes,
// guaranteeing acquire/release for a category are observed in submission
// order.
func (m *Manager) do(fn func()) {
	done := make(chan struct{})
	select {
	case m.reqs <- request{fn: fn, done: done}:
		<-done
	case <-m.closed:
	}
}

// Acquire appends operation to category's FIFO and returns the previous
// tail, if any, which the caller must add as a dependency of operation
// (spec.md §4.3). It also installs a DidFinish observer on operation that
// releases the slot, so callers never need to call Release directly for
// the common case of "hold the category for the operation's lifetime".
func (m *Manager) Acquire(operation op.Operation, category string) op.Operation {
	var previous op.Operation
	m.do(func() {
		holders := m.categories[category]
		if len(holders) > 0 {
			previous = holders[len(holders)-1]
		}
		m.categories[category] = append(holders, operation)
	})

	operation.AddObserver(op.Observer{
		DidFinish: func(o op.Operation, _ []error) {
			m.Release(o, category)
		},
	})

	return previous
}

// Release removes operation from category's FIFO. Idempotent.
func (m *Manager) Release(operation op.Operation, category string) {
	m.do(func() {
		holders := m.categories[category]
		for i, h := range holders {
			if h.ID() == operation.ID() {
				m.categories[category] = append(holders[:i], holders[i+1:]...)
				return
			}
		}
	})
}

// Holders returns a snapshot of category's current FIFO, head (oldest)
// first, for debug output and tests.
func (m *Manager) Holders(category string) []op.Operation {
	var out []op.Operation
	m.do(func() {
		out = append(out, m.categories[category]...)
	})
	return out
}

// Close stops the actor goroutine. Intended for tests; the process-wide
// Default is never closed in production use.
func (m *Manager) Close() {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
}

// Default is the process-wide Exclusivity Manager singleton spec.md §4.3
// describes. Queues use it unless constructed with an explicit Manager
// (see opqueue.WithExclusivityManager), which exists purely for test
// isolation.
var Default = New()
