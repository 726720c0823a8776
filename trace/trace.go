// Package trace defines a deterministic record of one scheduler run.
//
// A RunTrace captures logical scheduling decisions only: tasks staged,
// coalescing hits, batches dispatched, progressions advanced or ended, and
// phase boundaries. It deliberately contains no timestamps, durations,
// pointers or error strings, so the canonical form of a trace is stable
// across machines and runs with identical inputs. Recording a trace must
// never affect execution behavior.
package trace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// EventKind is the stable discriminator for Event. The string values are
// part of the trace's canonical bytes; do not rename.
type EventKind string

const (
	// EventTaskStaged records a task being placed into a batch.
	EventTaskStaged EventKind = "TaskStaged"
	// EventTaskCoalesced records a task instance reusing an already
	// scheduled execution.
	EventTaskCoalesced EventKind = "TaskCoalesced"
	// EventBatchDispatched records one handler batch call.
	EventBatchDispatched EventKind = "BatchDispatched"
	// EventProgressionAdvanced records a sequence continuation producing a
	// follow-up task.
	EventProgressionAdvanced EventKind = "ProgressionAdvanced"
	// EventProgressionEnded records a sequence continuation returning
	// nothing; the slot resolves to nil.
	EventProgressionEnded EventKind = "ProgressionEnded"
	// EventPhaseCompleted closes one phase; Size carries the number of
	// batches the phase dispatched.
	EventPhaseCompleted EventKind = "PhaseCompleted"
)

// kindRank orders kinds within one phase: staging decisions, dispatches,
// progression outcomes, then the phase boundary.
func kindRank(k EventKind) int {
	switch k {
	case EventTaskStaged:
		return 0
	case EventTaskCoalesced:
		return 1
	case EventBatchDispatched:
		return 2
	case EventProgressionAdvanced:
		return 3
	case EventProgressionEnded:
		return 4
	case EventPhaseCompleted:
		return 5
	default:
		return 6
	}
}

func knownKind(k EventKind) bool { return kindRank(k) < 6 }

// Fingerprint is a 64-bit group digest, serialized as a fixed-width hex
// string so traces stay byte-stable and diff-friendly.
type Fingerprint uint64

// MarshalJSON renders the fingerprint as a zero-padded hex string.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%016x", uint64(f)))
}

// UnmarshalJSON parses the hex form produced by MarshalJSON.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return errors.Wrap(err, "parsing fingerprint")
	}
	*f = Fingerprint(v)
	return nil
}

// Event is a single logical scheduling decision.
//
// Optional fields are zero when absent and omitted from JSON. TaskID is
// required for task-level kinds. NextTaskID accompanies ProgressionAdvanced
// when the continuation is a single task; a continuation expanding into a
// whole subtree has no single next ID.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Phase      int         `json:"phase"`
	TaskID     int64       `json:"taskId,omitempty"`
	NextTaskID int64       `json:"nextTaskId,omitempty"`
	Group      Fingerprint `json:"group,omitempty"`
	Size       int         `json:"size,omitempty"`
}

// RunTrace is the canonical record of one run.
type RunTrace struct {
	RunID  string  `json:"runId"`
	Events []Event `json:"events"`
}

// Validate checks structural invariants and returns a descriptive error.
func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.RunID == "" {
		return errors.New("runId is required")
	}
	for i, e := range t.Events {
		if !knownKind(e.Kind) {
			return errors.Errorf("events[%d]: unknown kind %q", i, e.Kind)
		}
		if e.Phase < 1 {
			return errors.Errorf("events[%d]: phase must be >= 1, got %d", i, e.Phase)
		}
		switch e.Kind {
		case EventTaskStaged, EventTaskCoalesced, EventProgressionAdvanced, EventProgressionEnded:
			if e.TaskID == 0 {
				return errors.Errorf("events[%d]: taskId is required for kind %q", i, e.Kind)
			}
		}
		if e.NextTaskID != 0 && e.Kind != EventProgressionAdvanced {
			return errors.Errorf("events[%d]: nextTaskId is only valid for kind %q", i, EventProgressionAdvanced)
		}
	}
	return nil
}

// Canonicalize sorts events into their total order. The order is independent
// of recording interleaving: (phase, kind rank, task id, next task id,
// group, size).
func (t *RunTrace) Canonicalize() {
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
			return ra < rb
		}
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if a.NextTaskID != b.NextTaskID {
			return a.NextTaskID < b.NextTaskID
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Size < b.Size
	})
}

// MarshalCanonicalJSON canonicalizes the trace and returns its byte-stable
// JSON form.
func (t *RunTrace) MarshalCanonicalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Canonicalize()
	return json.MarshalIndent(t, "", "  ")
}
