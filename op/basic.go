package op

import "context"

// BasicOperation adapts a plain function into an Operation, the
// equivalent of scriptweaver's closure-based TaskRunner but driven by the
// state machine in this package instead of a DAG executor loop.
type BasicOperation struct {
	*Base
	fn func(ctx context.Context, finish func(errs []error))
}

// NewBasicOperation builds an operation named name whose execute hook runs
// fn. fn must eventually call the finish callback it is given, exactly
// once.
func NewBasicOperation(name string, fn func(ctx context.Context, finish func(errs []error))) *BasicOperation {
	o := &BasicOperation{fn: fn}
	o.Base = NewBase(o, name, o.execute)
	return o
}

func (o *BasicOperation) execute(ctx context.Context) {
	o.fn(ctx, o.Finish)
}

// BlockOperation runs fn synchronously and finishes with its returned
// error, for the common case where the work is not itself asynchronous.
func BlockOperation(name string, fn func(ctx context.Context) error) *BasicOperation {
	return NewBasicOperation(name, func(ctx context.Context, finish func(errs []error)) {
		if err := fn(ctx); err != nil {
			finish([]error{err})
			return
		}
		finish(nil)
	})
}
