package op

import (
	"errors"
	"fmt"
)

// ErrProduceTooLate is the sentinel Produce returns once the operation has
// finished, in the same shape as scriptweaver's internal/dag/errors.go: a
// package-level sentinel paired with a wrapping struct that carries
// context (ParentCancelled below).
var ErrProduceTooLate = errors.New("produce called after operation finished")

// ParentCancelled wraps the errors a group's cancellation cause propagated
// onto a child (spec.md §4.5, §7 "Structural errors").
type ParentCancelled struct {
	Errs []error
}

func (e *ParentCancelled) Error() string {
	if e == nil || len(e.Errs) == 0 {
		return "parent cancelled"
	}
	return fmt.Sprintf("parent cancelled: %v", e.Errs)
}

func (e *ParentCancelled) Unwrap() []error { return e.Errs }
