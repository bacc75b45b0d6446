package vm

import (
	"time"

	"github.com/chazu/tuuvm/heap"
)

// Observer receives execution events from a context. Callbacks run on the
// mutator goroutine and must not call back into the context.
type Observer interface {
	GCCycle(stats heap.CycleStats)
	JITCompiled(event JITEvent)
}

// JITEvent describes one native compilation.
type JITEvent struct {
	Function string
	Arch     string
	Ops      int
	CodeSize int
	Session  uint64
	Duration time.Duration
	Err      error
}
