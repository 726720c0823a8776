package batchmux

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"batchmux/trace"
)

// pendingProgression is a sequence continuation awaiting its base result.
// The entry is keyed by the sequence's own TaskID, which owns the result
// slot; base is the dispatched task whose result feeds fn.
type pendingProgression struct {
	fn   ProgressionFunc
	base TaskID
}

// run is the mutable state of one scheduler execution.
//
// Determinism: task IDs come from a monotonic counter driven by MultiTask
// insertion order, batches dispatch in the order their groups first appeared,
// and progressions advance in ascending TaskID order. Two runs over equal
// inputs therefore stage, dispatch and advance identically, which is what
// makes the trace canonical form reproducible.
type run struct {
	registry  *Registry
	logger    log.Logger
	metrics   *schedulerMetrics
	rec       trace.Recorder
	stats     *RunStats
	maxPhases int
	observe   bool

	nextID TaskID
	phase  int

	batches      map[groupKey]*pendingBatch
	batchOrder   []groupKey
	idsByTaskKey map[dedupKey]TaskID
	pending      map[TaskID]pendingProgression
	results      map[TaskID]any
	skel         *skeleton
	backRefs     map[TaskID]int
}

func (r *run) allocID() TaskID {
	r.nextID++
	return r.nextID
}

func (r *run) record(ev trace.Event) {
	if r.observe {
		r.rec.Record(ev)
	}
}

// execute drives the phase loop: dispatch every staged batch, apply the
// progressions the settled results unblock, repeat until no progression is
// pending. Invariant: a phase dispatches every batch staged for it before
// any progression of that phase runs.
func (r *run) execute(ctx context.Context, m *MultiTask) (Tree, error) {
	r.phase = 1
	if err := r.stageMulti(m, r.skel.root()); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "run canceled in phase %d", r.phase)
		}
		n, err := r.dispatch(ctx)
		if err != nil {
			return nil, err
		}
		r.record(trace.Event{Kind: trace.EventPhaseCompleted, Phase: r.phase, Size: n})
		if r.observe && r.stats != nil {
			r.stats.Phases.Inc()
		}
		if len(r.pending) == 0 {
			break
		}
		if r.maxPhases > 0 && r.phase >= r.maxPhases {
			return nil, errors.Wrapf(ErrPhaseLimit, "run aborted after %d phases with %d progressions pending", r.phase, len(r.pending))
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
	}
	if r.observe {
		r.metrics.phases.Observe(float64(r.phase))
	}
	return r.skel.assemble(r.results), nil
}

// stageMulti stages every subtask of m under the given branch node, in
// insertion order.
func (r *run) stageMulti(m *MultiTask, branch int) error {
	for _, key := range m.keys {
		child := r.skel.newLeaf()
		r.skel.addChild(branch, key, child)
		if _, err := r.stageTask(m.subtasks[key], child); err != nil {
			return errors.Wrapf(err, "caller key %q", key)
		}
	}
	return nil
}

// stageTask places one task into the current phase and wires the given
// skeleton slot to its eventual result. It returns the TaskID now occupying
// the slot, or invalidID when the slot became a branch.
//
// Sequences are unwrapped here: nested sequence bases collapse into a single
// composed progression over the innermost base, so the scheduler only ever
// tracks one pending continuation per slot.
func (r *run) stageTask(t Task, slot int) (TaskID, error) {
	var prog ProgressionFunc
	for {
		st, ok := t.(*SequenceTask)
		if !ok {
			break
		}
		if st.Progression() == nil {
			return invalidID, errors.WithStack(ErrNilProgression)
		}
		prog = chainProgressions(st.Progression(), prog)
		t = st.Base()
	}
	if t == nil {
		return invalidID, errors.Wrap(ErrNilTask, "sequence base")
	}

	if m, ok := t.(*MultiTask); ok {
		if prog != nil {
			return invalidID, errors.WithStack(ErrSequenceOverMulti)
		}
		r.skel.toBranch(slot)
		return invalidID, r.stageMulti(m, slot)
	}

	keys := t.BatchingKeys()
	if keys.Handler == "" {
		return invalidID, errors.Wrapf(ErrInvalidKeys, "task %T reports an empty handler ID", t)
	}
	gk := groupKey{handler: keys.Handler, batchKey: keys.BatchKey}

	baseID, coalesced := invalidID, false
	if keys.TaskKey != "" {
		dk := dedupKey{handler: keys.Handler, batchKey: keys.BatchKey, taskKey: keys.TaskKey}
		if id, ok := r.idsByTaskKey[dk]; ok {
			// Coalesced onto a task staged earlier this run, possibly in
			// a prior phase whose result is already in.
			baseID, coalesced = id, true
		}
	}
	if coalesced {
		r.record(trace.Event{Kind: trace.EventTaskCoalesced, Phase: r.phase, TaskID: int64(baseID), Group: trace.Fingerprint(gk.fingerprint())})
		if r.observe {
			r.metrics.tasksCoalesced.Inc()
			if r.stats != nil {
				r.stats.Coalesced.Inc()
			}
		}
	} else {
		baseID = r.allocID()
		if keys.TaskKey != "" {
			r.idsByTaskKey[dedupKey{handler: keys.Handler, batchKey: keys.BatchKey, taskKey: keys.TaskKey}] = baseID
		}
		pb, ok := r.batches[gk]
		if !ok {
			pb = &pendingBatch{key: gk, tasks: make(map[TaskID]Task)}
			r.batches[gk] = pb
			r.batchOrder = append(r.batchOrder, gk)
		}
		pb.tasks[baseID] = t
		r.record(trace.Event{Kind: trace.EventTaskStaged, Phase: r.phase, TaskID: int64(baseID), Group: trace.Fingerprint(gk.fingerprint())})
	}

	slotID := baseID
	if prog != nil {
		slotID = r.allocID()
		r.pending[slotID] = pendingProgression{fn: prog, base: baseID}
		r.backRefs[slotID] = slot
	}
	r.skel.setLeaf(slot, slotID)
	return slotID, nil
}

// dispatch executes every batch staged for the current phase and folds the
// handler outputs into the result table. It returns the number of batches
// dispatched.
func (r *run) dispatch(ctx context.Context) (int, error) {
	batches := r.batches
	order := r.batchOrder
	r.batches = make(map[groupKey]*pendingBatch)
	r.batchOrder = nil

	for _, gk := range order {
		pb := batches[gk]
		h, err := r.registry.Get(gk.handler)
		if err != nil {
			return 0, errors.Wrapf(err, "phase %d", r.phase)
		}
		out := make(Results, len(pb.tasks))
		start := time.Now()
		execErr := h.ExecuteBatch(ctx, gk.batchKey, pb.tasks, out)
		if r.observe {
			r.metrics.batchDuration.WithLabelValues(gk.handler).Observe(time.Since(start).Seconds())
		}
		if execErr != nil {
			return 0, errors.Wrapf(execErr, "handler %q batch %q", gk.handler, gk.batchKey)
		}
		for id, v := range out {
			r.results[id] = v
		}
		level.Debug(r.logger).Log(
			"msg", "batch dispatched",
			"phase", r.phase,
			"handler", gk.handler,
			"batch_key", gk.batchKey,
			"group", fmt.Sprintf("%016x", gk.fingerprint()),
			"tasks", len(pb.tasks),
		)
		r.record(trace.Event{Kind: trace.EventBatchDispatched, Phase: r.phase, Group: trace.Fingerprint(gk.fingerprint()), Size: len(pb.tasks)})
		if r.observe {
			r.metrics.batchesDispatched.Inc()
			r.metrics.tasksDispatched.WithLabelValues(gk.handler).Add(float64(len(pb.tasks)))
			if r.stats != nil {
				r.stats.Batches.Inc()
				r.stats.Tasks.Add(int64(len(pb.tasks)))
			}
		}
	}
	return len(order), nil
}

// advance applies every pending progression against the settled results and
// stages whatever they return into the next phase. Progressions run in
// ascending TaskID order over a snapshot, so continuations staged here only
// become pending for the phase after.
func (r *run) advance() error {
	settled := r.phase
	pend := r.pending
	r.pending = make(map[TaskID]pendingProgression)

	ids := make([]TaskID, 0, len(pend))
	for id := range pend {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	r.phase = settled + 1
	for _, id := range ids {
		p := pend[id]
		next := p.fn(r.results[p.base])
		if next == nil {
			r.results[id] = nil
			delete(r.backRefs, id)
			r.record(trace.Event{Kind: trace.EventProgressionEnded, Phase: settled, TaskID: int64(id)})
			continue
		}
		slot := r.backRefs[id]
		delete(r.backRefs, id)
		sid, err := r.stageTask(next, slot)
		if err != nil {
			return errors.Wrapf(err, "progression of task %d", id)
		}
		ev := trace.Event{Kind: trace.EventProgressionAdvanced, Phase: settled, TaskID: int64(id)}
		if sid != invalidID {
			ev.NextTaskID = int64(sid)
		}
		r.record(ev)
	}
	return nil
}
