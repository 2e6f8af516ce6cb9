package opqueue

// semaphore is a counting semaphore over a buffered channel, where nil
// means unlimited capacity and never blocks. Ported in-module (not
// imported) from notorious-go/sync's semaphore package: that module is
// not reachable from this one's dependency graph (no published version
// this module can require — see DESIGN.md), but the design — a nil
// Semaphore as the zero-cost "unlimited" case — is exactly what a queue's
// optional maxConcurrent hint needs, so it is reproduced here rather than
// hand-rolling a different shape.
type semaphore chan struct{}

// newSemaphore returns a semaphore with the given limit. A limit <= 0
// means unlimited.
func newSemaphore(limit int) semaphore {
	if limit <= 0 {
		return nil
	}
	return make(semaphore, limit)
}

func (s semaphore) acquire() {
	if s == nil {
		return
	}
	s <- struct{}{}
}

func (s semaphore) release() {
	if s == nil {
		return
	}
	<-s
}
