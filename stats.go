package batchmux

import "go.uber.org/atomic"

// RunStats exposes live counters for scheduler runs. Pass a RunStats via
// WithRunStats to observe a run while it is in flight; all fields are safe
// to read concurrently. When shared across runs the counters accumulate.
type RunStats struct {
	// Phases counts completed phases.
	Phases atomic.Int64
	// Batches counts dispatched batch calls.
	Batches atomic.Int64
	// Tasks counts task instances passed to handlers.
	Tasks atomic.Int64
	// Coalesced counts task instances that reused an already scheduled
	// execution instead of being dispatched.
	Coalesced atomic.Int64
}
