// Package platform defines the host-application lifecycle hook spec.md §1
// lists as an external collaborator ("platform-specific background-task
// integration" is out of scope for the core): an AppStateSource interface
// the core only consumes, and a BackgroundObserver built on top of it.
package platform

import (
	"sync"

	"opkit/op"
)

// AppState is the coarse lifecycle phase an AppStateSource reports.
type AppState int

const (
	StateActive AppState = iota
	StateBackground
)

// AppStateSource is the host application's lifecycle hook (spec.md §6).
// The core never implements this; it only consumes it through
// BackgroundObserver.
type AppStateSource interface {
	CurrentState() AppState
	// BeginBackgroundTask requests extra run time from the host OS. ok is
	// false if none is available.
	BeginBackgroundTask() (taskID int, ok bool)
	EndBackgroundTask(taskID int)
}

// BackgroundObserver starts a background task if the host is in, or moves
// to, the background while the operation it is attached to is executing,
// and ends it once that operation finishes or is cancelled. It does not end
// the task when the host returns to the foreground.
type BackgroundObserver struct {
	source AppStateSource

	mu        sync.Mutex
	executing bool
	active    bool
	taskID    int
}

// NewBackgroundObserver builds a BackgroundObserver against source. A nil
// source makes Observer() a no-op, for hosts with no background-task
// capability.
func NewBackgroundObserver(source AppStateSource) *BackgroundObserver {
	return &BackgroundObserver{source: source}
}

// Observer returns the op.Observer to attach to the operation this
// instance is tracking. One BackgroundObserver tracks exactly one
// operation's lifetime.
func (b *BackgroundObserver) Observer() op.Observer {
	return op.Observer{
		WillExecute: func(op.Operation) {
			b.mu.Lock()
			b.executing = true
			needsTask := b.source != nil && b.source.CurrentState() == StateBackground
			b.mu.Unlock()
			if needsTask {
				b.beginTask()
			}
		},
		DidFinish: func(op.Operation, []error) { b.stopExecuting() },
		DidCancel: func(op.Operation, []error) { b.stopExecuting() },
	}
}

// HandleAppDidEnterBackground should be called by the host when its
// AppStateSource transitions to StateBackground. If the tracked operation
// is currently executing, this begins a background task to cover it.
func (b *BackgroundObserver) HandleAppDidEnterBackground() {
	b.mu.Lock()
	needsTask := b.executing && !b.active
	b.mu.Unlock()
	if needsTask {
		b.beginTask()
	}
}

func (b *BackgroundObserver) beginTask() {
	if b.source == nil {
		return
	}
	id, ok := b.source.BeginBackgroundTask()
	if !ok {
		return
	}
	b.mu.Lock()
	b.taskID = id
	b.active = true
	b.mu.Unlock()
}

func (b *BackgroundObserver) stopExecuting() {
	b.mu.Lock()
	b.executing = false
	wasActive := b.active
	id := b.taskID
	b.active = false
	b.mu.Unlock()

	if wasActive && b.source != nil {
		b.source.EndBackgroundTask(id)
	}
}
