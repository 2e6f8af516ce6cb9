package clock_test

import (
	"testing"
	"time"

	"opkit/clock"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestImmediate(t *testing.T) {
	s := clock.Immediate()
	for attempt := 0; attempt < 3; attempt++ {
		if got := s(attempt); got != 0 {
			t.Fatalf("attempt %d: got %v, want 0", attempt, got)
		}
	}
}

func TestFixed(t *testing.T) {
	s := clock.Fixed(5 * time.Second)
	if got := s(0); got != 5*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := s(9); got != 5*time.Second {
		t.Fatalf("got %v", got)
	}
}

func TestExponential(t *testing.T) {
	s := clock.Exponential(time.Second, 2)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, w := range want {
		if got := s(attempt); got != w {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestFromDeadlineInPast(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := clock.From(fakeClock{now}, now.Add(-time.Minute))
	if got := s(0); got != 0 {
		t.Fatalf("got %v, want 0 for past deadline", got)
	}
}

func TestFromDeadlineInFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := clock.From(fakeClock{now}, now.Add(10*time.Second))
	if got := s(0); got != 10*time.Second {
		t.Fatalf("got %v, want 10s", got)
	}
}

func TestCustom(t *testing.T) {
	s := clock.Custom(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	if got := s(7); got != 7*time.Millisecond {
		t.Fatalf("got %v", got)
	}
}
