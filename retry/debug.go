package retry

import (
	"strconv"

	"opkit/opdebug"
)

// DebugRecord surfaces the attempt counter and error history alongside the
// in-flight attempt, satisfying opdebug.Debuggable.
func (r *RetryOperation) DebugRecord() opdebug.DebugRecord {
	r.mu.Lock()
	count := r.count
	historical := len(r.historicalErrors)
	current := r.current
	r.mu.Unlock()

	rec := opdebug.DebugRecord{
		Description: r.Name(),
		Properties: map[string]string{
			"id":               r.ID(),
			"state":            r.State().String(),
			"cancelled":        strconv.FormatBool(r.IsCancelled()),
			"count":            strconv.Itoa(count),
			"historicalErrors": strconv.Itoa(historical),
		},
	}
	if current != nil {
		rec.SubOperations = append(rec.SubOperations, opdebug.Describe(current, opdebug.DefaultMaxDepth-1))
	}
	return rec
}
