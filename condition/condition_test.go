package condition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"opkit/condition"
	"opkit/op"
)

func runEvaluator(t *testing.T, e *condition.Evaluator) {
	t.Helper()
	e.Enqueue()
	go func() {
		<-e.Ready()
		e.Run(context.Background())
	}()
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("evaluator did not finish")
	}
}

func TestTrueConditionSatisfied(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	e := condition.NewEvaluator(target, []op.Condition{condition.NewTrueCondition()})
	runEvaluator(t, e)
	if e.Failed() {
		t.Fatalf("expected success, got errors %v", e.Errors())
	}
}

func TestFalseConditionFails(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	e := condition.NewEvaluator(target, []op.Condition{condition.NewFalseCondition()})
	runEvaluator(t, e)
	if !e.Failed() {
		t.Fatal("expected failure")
	}
	if !errors.Is(e.Errors()[0], condition.ErrFalseCondition) {
		t.Fatalf("got %v", e.Errors())
	}
}

func TestBlockCondition(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	ok := condition.NewBlockCondition("yes", func(op.Operation) bool { return true })
	e := condition.NewEvaluator(target, []op.Condition{ok})
	runEvaluator(t, e)
	if e.Failed() {
		t.Fatalf("expected success, got %v", e.Errors())
	}

	no := condition.NewBlockCondition("no", func(op.Operation) bool { return false })
	e2 := condition.NewEvaluator(target, []op.Condition{no})
	runEvaluator(t, e2)
	if !e2.Failed() {
		t.Fatal("expected failure")
	}
}

func TestNoFailedDependenciesZeroDeps(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	e := condition.NewEvaluator(target, []op.Condition{condition.NewNoFailedDependenciesCondition()})
	runEvaluator(t, e)
	if e.Failed() {
		t.Fatalf("zero dependencies must satisfy NoFailedDependencies, got %v", e.Errors())
	}
}

func TestNoFailedDependenciesWithFailedDep(t *testing.T) {
	dep := op.NewBasicOperation("dep", func(ctx context.Context, finish func(errs []error)) {
		finish([]error{errors.New("boom")})
	})
	dep.Enqueue()
	go func() {
		<-dep.Ready()
		dep.Run(context.Background())
	}()
	<-dep.Done()

	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	target.AddDependency(dep)

	e := condition.NewEvaluator(target, []op.Condition{condition.NewNoFailedDependenciesCondition()})
	runEvaluator(t, e)
	if !e.Failed() {
		t.Fatal("expected failure due to failed dependency")
	}
	if !errors.Is(e.Errors()[0], condition.ErrFailedDependencies) {
		t.Fatalf("got %v", e.Errors())
	}
}

func TestNegatedCondition(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })
	neg := condition.Negated(condition.NewFalseCondition())
	e := condition.NewEvaluator(target, []op.Condition{neg})
	runEvaluator(t, e)
	if e.Failed() {
		t.Fatalf("negating a false condition should satisfy, got %v", e.Errors())
	}
}

func TestComposedComposedEquivalence(t *testing.T) {
	target := op.NewBasicOperation("t", func(ctx context.Context, finish func(errs []error)) { finish(nil) })

	once := condition.NewComposedCondition(condition.NewFalseCondition())
	twice := condition.NewComposedCondition(once)

	e1 := condition.NewEvaluator(target, []op.Condition{once})
	runEvaluator(t, e1)
	e2 := condition.NewEvaluator(target, []op.Condition{twice})
	runEvaluator(t, e2)

	if e1.Failed() != e2.Failed() {
		t.Fatalf("Composed(Composed(c)) diverged from Composed(c): %v vs %v", e1.Failed(), e2.Failed())
	}
}
