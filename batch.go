package batchmux

import "github.com/cespare/xxhash/v2"

// groupKey buckets tasks into batches: one ExecuteBatch call per groupKey
// per phase.
type groupKey struct {
	handler  string
	batchKey string
}

// dedupKey identifies a coalescable request across all phases of one run.
type dedupKey struct {
	handler  string
	batchKey string
	taskKey  string
}

// fingerprint is a stable 64-bit digest of the group, surfaced in traces,
// logs and the debug view so that groups can be matched across runs without
// carrying the raw strings.
func (g groupKey) fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(g.handler)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(g.batchKey)
	return d.Sum64()
}

// Batch is one pending dispatch group, as exposed by the debug view.
type Batch struct {
	Handler     string
	BatchKey    string
	Fingerprint uint64
	Tasks       map[TaskID]Task
}

// pendingBatch is the scheduler-internal accumulation of one group's tasks
// for the current phase.
type pendingBatch struct {
	key   groupKey
	tasks map[TaskID]Task
}
