package batchmux

// TaskID identifies one scheduled unit of work. IDs are allocated from a
// monotonic counter and are unique within a single run; they carry no
// meaning across runs.
type TaskID int64

// invalidID is the zero TaskID. Real IDs start at 1, so a zero value in a
// skeleton slot always means "not yet assigned".
const invalidID TaskID = 0

// DefaultBatchKey is the bucket used by tasks that do not partition their
// handler's work any further.
const DefaultBatchKey = "default"

// BatchingKeys classify a task for grouping and deduplication.
//
// Tasks sharing (Handler, BatchKey) are dispatched to the handler in a
// single ExecuteBatch call. Tasks additionally sharing a non-empty TaskKey
// are assumed to yield identical results and are executed at most once per
// run.
type BatchingKeys struct {
	// Handler selects the registered Handler that executes batches of this
	// task's kind.
	Handler string

	// BatchKey is a handler-specific bucket. One ExecuteBatch call is made
	// per (Handler, BatchKey) pair per phase.
	BatchKey string

	// TaskKey deduplicates identical requests within one run. Empty means
	// the task is never coalesced.
	TaskKey string
}

// DefaultKeys returns the conventional keys for a task kind: the given
// handler, the default batch key and no deduplication.
func DefaultKeys(handler string) BatchingKeys {
	return BatchingKeys{Handler: handler, BatchKey: DefaultBatchKey}
}

// Task is one unit of deferred work.
//
// A Task is immutable once submitted to the engine. The scheduler treats
// *MultiTask and *SequenceTask structurally; every other implementation is
// an opaque leaf dispatched through its handler.
type Task interface {
	// BatchingKeys reports how this task is grouped and deduplicated.
	BatchingKeys() BatchingKeys
}

// Kind identifiers of the engine's composite task kinds. They are reserved:
// the scheduler recognizes the composite kinds by type, never through the
// registry, so no handler can be dispatched under these IDs by the engine
// itself.
const (
	multiKind    = "multi"
	sequenceKind = "sequence"
)
