package opgroup

import (
	"strconv"

	"opkit/op"
	"opkit/opdebug"
)

// DebugRecord reports the group's own bookkeeping (fatal error count,
// pending recoveries, finishing state) alongside its children, satisfying
// opdebug.Debuggable with richer detail than the generic Operation-only
// introspection opdebug.Describe falls back to.
func (g *GroupOperation) DebugRecord() opdebug.DebugRecord {
	g.mu.Lock()
	operations := append([]op.Operation(nil), g.operations...)
	fatal := len(g.fatalErrors)
	recovering := len(g.attemptedRecovery)
	finishing := g.isGroupFinishing
	g.mu.Unlock()

	rec := opdebug.DebugRecord{
		Description: g.Name(),
		Properties: map[string]string{
			"id":               g.ID(),
			"state":            g.State().String(),
			"cancelled":        strconv.FormatBool(g.IsCancelled()),
			"fatalErrors":      strconv.Itoa(fatal),
			"attemptedRecover": strconv.Itoa(recovering),
			"isGroupFinishing": strconv.FormatBool(finishing),
		},
	}
	for _, o := range operations {
		rec.SubOperations = append(rec.SubOperations, opdebug.Describe(o, opdebug.DefaultMaxDepth-1))
	}
	return rec
}
