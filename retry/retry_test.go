package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"opkit/op"
	"opkit/retry"
)

func waitDone(t *testing.T, o op.Operation) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(time.Second):
		t.Fatal("retry did not finish in time")
	}
}

func runRetry(t *testing.T, r *retry.RetryOperation) {
	t.Helper()
	r.Enqueue()
	go func() {
		<-r.Ready()
		r.Run(context.Background())
	}()
	waitDone(t, r)
}

// flakyGenerator builds a Generator whose payload operation fails
// failCount times before succeeding.
func flakyGenerator(failCount int) (retry.Generator, *int32) {
	var attempts int32
	gen := func(attempt int, historical []error) (retry.GeneratorResult, bool) {
		n := atomic.AddInt32(&attempts, 1)
		payload := op.NewBasicOperation("attempt", func(ctx context.Context, finish func(errs []error)) {
			if int(n) <= failCount {
				finish([]error{errors.New("simulated failure")})
				return
			}
			finish(nil)
		})
		return retry.GeneratorResult{Operation: payload}, true
	}
	return gen, &attempts
}

// TestRetrySucceedsAfterTwoFailures is S5 from spec.md §8: the generator
// yields attempts that fail twice then succeed; maxCount=5; the policy
// always accepts the recommendation. Expect count=3, two historical
// errors.
func TestRetrySucceedsAfterTwoFailures(t *testing.T) {
	gen, _ := flakyGenerator(2)
	r := retry.New("flaky", gen,
		retry.WithMaxCount(5),
		retry.WithPolicy(func(info retry.Info, recommended retry.GeneratorResult) retry.Decision {
			return retry.Accept()
		}),
	)

	runRetry(t, r)

	if !r.Succeeded() {
		t.Fatalf("expected retry to succeed, got errors %v", r.Errors())
	}
	if r.Count() != 3 {
		t.Fatalf("expected count=3, got %d", r.Count())
	}
	if len(r.HistoricalErrors()) != 2 {
		t.Fatalf("expected 2 historical errors, got %v", r.HistoricalErrors())
	}
}

// TestRetryPolicyStopsAfterFirstFailure is S6 from spec.md §8: the
// generator always yields a failing attempt; the policy returns Stop
// after the first failure. Expect count=1, one error.
func TestRetryPolicyStopsAfterFirstFailure(t *testing.T) {
	gen, attempts := flakyGenerator(1 << 30) // always fails
	r := retry.New("always-fails", gen,
		retry.WithPolicy(func(info retry.Info, recommended retry.GeneratorResult) retry.Decision {
			if info.Count > 0 {
				return retry.Stop()
			}
			return retry.Accept()
		}),
	)

	runRetry(t, r)

	if r.Succeeded() {
		t.Fatal("expected retry to fail")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count=1, got %d", r.Count())
	}
	if len(r.Errors()) != 1 {
		t.Fatalf("expected exactly one error, got %v", r.Errors())
	}
	// The generator is consulted once per round regardless of whether the
	// policy goes on to accept or stop that round's recommendation: one
	// round produced the attempt that actually ran, a second round
	// produced the recommendation the policy then stopped.
	if *attempts != 2 {
		t.Fatalf("expected generator consulted twice, got %d", *attempts)
	}
}

func TestRetryExhaustsGenerator(t *testing.T) {
	calls := 0
	gen := func(attempt int, historical []error) (retry.GeneratorResult, bool) {
		if calls >= 2 {
			return retry.GeneratorResult{}, false
		}
		calls++
		payload := op.NewBasicOperation("attempt", func(ctx context.Context, finish func(errs []error)) {
			finish([]error{errors.New("still failing")})
		})
		return retry.GeneratorResult{Operation: payload}, true
	}
	r := retry.New("exhausts", gen)

	runRetry(t, r)

	if r.Succeeded() {
		t.Fatal("expected retry to fail once the generator is exhausted")
	}
	if len(r.Errors()) != 2 {
		t.Fatalf("expected 2 accumulated errors, got %v", r.Errors())
	}
}

func TestRetryHonorsMaxCount(t *testing.T) {
	gen := func(attempt int, historical []error) (retry.GeneratorResult, bool) {
		payload := op.NewBasicOperation("attempt", func(ctx context.Context, finish func(errs []error)) {
			finish([]error{errors.New("nope")})
		})
		return retry.GeneratorResult{Operation: payload}, true
	}
	r := retry.New("capped", gen, retry.WithMaxCount(3))

	runRetry(t, r)

	if r.Count() != 3 {
		t.Fatalf("expected count capped at 3, got %d", r.Count())
	}
}

func TestRetryCancelStopsFurtherAttempts(t *testing.T) {
	started := make(chan struct{}, 1)
	gen := func(attempt int, historical []error) (retry.GeneratorResult, bool) {
		payload := op.NewBasicOperation("blocked-attempt", func(ctx context.Context, finish func(errs []error)) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			finish(nil)
		})
		return retry.GeneratorResult{Operation: payload}, true
	}
	r := retry.New("cancel-me", gen)

	r.Enqueue()
	go func() {
		<-r.Ready()
		r.Run(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("attempt never started")
	}

	r.Cancel()
	waitDone(t, r)

	if r.Count() != 1 {
		t.Fatalf("expected exactly one attempt before cancellation, got %d", r.Count())
	}
}
