package opgroup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"opkit/condition"
	"opkit/op"
	"opkit/opgroup"
	"opkit/opqueue"
)

func waitDone(t *testing.T, o op.Operation, timeout time.Duration) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(timeout):
		t.Fatal("operation did not finish in time")
	}
}

func TestGroupFinishesWithNoChildren(t *testing.T) {
	g := opgroup.NewGroupOperation("empty")
	q := opqueue.New()
	q.Add(g)
	waitDone(t, g, time.Second)

	if !g.Succeeded() {
		t.Fatalf("expected empty group to succeed, got errors %v", g.Errors())
	}
}

func TestGroupWaitsForAllChildren(t *testing.T) {
	var aRan, bRan bool
	a := op.NewBasicOperation("a", func(ctx context.Context, finish func(errs []error)) {
		aRan = true
		finish(nil)
	})
	b := op.NewBasicOperation("b", func(ctx context.Context, finish func(errs []error)) {
		time.Sleep(15 * time.Millisecond)
		bRan = true
		finish(nil)
	})

	g := opgroup.NewGroupOperation("two-children", a, b)
	q := opqueue.New()
	q.Add(g)
	waitDone(t, g, time.Second)

	if !aRan || !bRan {
		t.Fatalf("expected both children to run before group finished, got a=%v b=%v", aRan, bRan)
	}
	if !g.Succeeded() {
		t.Fatalf("expected group to succeed, got errors %v", g.Errors())
	}
}

// TestGroupFailedDependencyCondition is S3 from spec.md §8: a target T
// depends on group G (whose child C fails), and carries a
// NoFailedDependenciesCondition. T must never execute and must report
// FailedDependencies.
func TestGroupFailedDependencyCondition(t *testing.T) {
	c := op.NewBasicOperation("C", func(ctx context.Context, finish func(errs []error)) {
		finish([]error{errors.New("simulated")})
	})
	g := opgroup.NewGroupOperation("G", c)

	var targetRan bool
	target := op.NewBasicOperation("T", func(ctx context.Context, finish func(errs []error)) {
		targetRan = true
		finish(nil)
	})
	target.AddDependency(g)
	target.AddCondition(condition.NewNoFailedDependenciesCondition())

	q := opqueue.New()
	q.AddAll(g, target)
	waitDone(t, target, time.Second)

	if targetRan {
		t.Fatal("target executed despite a failed dependency")
	}
	if !errors.Is(target.Errors()[0], condition.ErrFailedDependencies) {
		t.Fatalf("expected FailedDependencies, got %v", target.Errors())
	}
}

// TestGroupWithProducedChild is S4 from spec.md §8: G starts C1, which
// produces C2 shortly after starting; G must not finish until both have
// finished, and Operations() must list both.
func TestGroupWithProducedChild(t *testing.T) {
	var c2Ran bool

	var c1 *op.BasicOperation
	c1 = op.NewBasicOperation("C1", func(ctx context.Context, finish func(errs []error)) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			c2 := op.NewBasicOperation("C2", func(ctx context.Context, finish func(errs []error)) {
				time.Sleep(20 * time.Millisecond)
				c2Ran = true
				finish(nil)
			})
			_ = c1.Produce(c2)
			finish(nil)
		}()
	})
	g := opgroup.NewGroupOperation("G", c1)

	q := opqueue.New()
	q.Add(g)
	waitDone(t, g, time.Second)

	if !c2Ran {
		t.Fatal("produced grandchild never ran")
	}
	names := map[string]bool{}
	for _, o := range g.Operations() {
		names[o.Name()] = true
	}
	if !names["C1"] || !names["C2"] {
		t.Fatalf("expected Operations() to contain C1 and C2, got %v", g.Operations())
	}
}

func TestGroupRecoversFromChildErrors(t *testing.T) {
	failing := op.NewBasicOperation("flaky", func(ctx context.Context, finish func(errs []error)) {
		finish([]error{errors.New("transient")})
	})
	g := opgroup.NewGroupOperation("recovering", failing)
	g.WillAttemptRecoveryFromErrors = func(child op.Operation, errs []error) bool {
		return child.Name() == "flaky"
	}

	q := opqueue.New()
	q.Add(g)
	waitDone(t, g, time.Second)

	if !g.Succeeded() {
		t.Fatalf("expected recovered errors to be suppressed, got %v", g.Errors())
	}
}

func TestGroupPropagatesFatalErrors(t *testing.T) {
	failing := op.NewBasicOperation("boom", func(ctx context.Context, finish func(errs []error)) {
		finish([]error{errors.New("unrecoverable")})
	})
	g := opgroup.NewGroupOperation("failing", failing)

	q := opqueue.New()
	q.Add(g)
	waitDone(t, g, time.Second)

	if g.Succeeded() {
		t.Fatal("expected group to fail")
	}
	if len(g.FatalErrors()) != 1 {
		t.Fatalf("expected exactly one fatal error, got %v", g.FatalErrors())
	}
}

func TestGroupCancelPropagatesToChildren(t *testing.T) {
	started := make(chan struct{})
	blocked := op.NewBasicOperation("blocked", func(ctx context.Context, finish func(errs []error)) {
		close(started)
		<-ctx.Done()
		finish(nil)
	})
	g := opgroup.NewGroupOperation("cancel-me", blocked)

	q := opqueue.New(opqueue.WithContext(context.Background()))
	q.Add(g)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("child never started")
	}

	g.Cancel()
	if !blocked.IsCancelled() {
		t.Fatal("expected child to be cancelled when group is cancelled")
	}
}
