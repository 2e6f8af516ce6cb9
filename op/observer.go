package op

// Observer is a record of callbacks for any subset of an operation's
// lifecycle events (spec.md §3, component C3). Every field is optional;
// nil callbacks are simply skipped. Observers never mutate the operation's
// state machine directly — they may enqueue further work through the
// queue they were attached from.
type Observer struct {
	// WillExecute fires immediately before the subclass's execute hook runs.
	WillExecute func(o Operation)
	// WillCancel fires synchronously inside Cancel/CancelWithErrors, after
	// the cancelled flag is set but before the cancellation errors are
	// recorded and before DidCancel.
	WillCancel func(o Operation, errs []error)
	// DidCancel fires after the cancelled flag has been set.
	DidCancel func(o Operation, errs []error)
	// DidProduce fires when the operation produces a child at runtime.
	DidProduce func(o Operation, child Operation)
	// WillFinish fires during the finishing state, before dependents are
	// released.
	WillFinish func(o Operation, errs []error)
	// DidFinish fires once the operation is observably finished.
	DidFinish func(o Operation, errs []error)
	// DidAttach fires when the observer is registered, letting a delegate
	// capture an operation reference without a second lookup.
	DidAttach func(o Operation)
}

// bus fans lifecycle events out to observers in registration order
// (spec.md §4.1 "Ordering guarantees").
type bus struct {
	observers []Observer
}

// add registers o. DidAttach is dispatched separately by the caller
// (Base.AddObserver), outside the lock add is called under.
func (b *bus) add(o Observer) {
	b.observers = append(b.observers, o)
}

func (b *bus) willExecute(op Operation) {
	for _, o := range b.observers {
		if o.WillExecute != nil {
			o.WillExecute(op)
		}
	}
}

func (b *bus) willCancel(op Operation, errs []error) {
	for _, o := range b.observers {
		if o.WillCancel != nil {
			o.WillCancel(op, errs)
		}
	}
}

func (b *bus) didCancel(op Operation, errs []error) {
	for _, o := range b.observers {
		if o.DidCancel != nil {
			o.DidCancel(op, errs)
		}
	}
}

func (b *bus) didProduce(op Operation, child Operation) {
	for _, o := range b.observers {
		if o.DidProduce != nil {
			o.DidProduce(op, child)
		}
	}
}

func (b *bus) willFinish(op Operation, errs []error) {
	for _, o := range b.observers {
		if o.WillFinish != nil {
			o.WillFinish(op, errs)
		}
	}
}

func (b *bus) didFinish(op Operation, errs []error) {
	for _, o := range b.observers {
		if o.DidFinish != nil {
			o.DidFinish(op, errs)
		}
	}
}
