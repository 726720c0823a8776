package batchmux

import (
	"context"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"batchmux/trace"
)

// Engine runs MultiTasks to completion. It holds the handler registry,
// metrics and observers shared across runs; the per-run scheduling state
// lives in a private run object, so a single Engine may execute many runs,
// though each run itself is synchronous.
type Engine struct {
	registry  *Registry
	logger    log.Logger
	metrics   *schedulerMetrics
	recorder  trace.Recorder
	stats     *RunStats
	maxPhases int
}

// NewEngine builds an Engine from the given options. Metrics are created and
// registered once here, so construct one Engine per Prometheus registerer.
func NewEngine(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o, err := o.normalized()
	if err != nil {
		return nil, err
	}
	return &Engine{
		registry:  o.registry,
		logger:    o.logger,
		metrics:   newSchedulerMetrics(o.registerer),
		recorder:  o.recorder,
		stats:     o.stats,
		maxPhases: o.maxPhases,
	}, nil
}

// ExecuteMulti runs the full phase loop over m and returns the assembled
// result tree. The first error from a handler, the registry or the phase cap
// aborts the run; the partial tree is discarded.
func (e *Engine) ExecuteMulti(ctx context.Context, m *MultiTask) (Tree, error) {
	if m == nil {
		return nil, errors.Wrap(ErrNilTask, "multi task")
	}
	logger := log.With(e.logger, "run_id", uuid.NewString())
	r := e.newRun(logger, true)
	level.Debug(logger).Log("msg", "run starting", "subtasks", m.Len())
	tree, err := r.execute(ctx, m)
	if err != nil {
		level.Debug(logger).Log("msg", "run failed", "phase", r.phase, "err", err)
		return nil, err
	}
	level.Debug(logger).Log("msg", "run settled", "phases", r.phase)
	return tree, nil
}

// Execute runs a single task of any kind. MultiTasks yield their Tree;
// every other task, sequences included, is wrapped into a one-slot MultiTask
// and its single result returned.
func (e *Engine) Execute(ctx context.Context, t Task) (any, error) {
	switch tt := t.(type) {
	case nil:
		return nil, errors.WithStack(ErrNilTask)
	case *MultiTask:
		return e.ExecuteMulti(ctx, tt)
	default:
		m := Multi()
		if err := m.Add("task", tt); err != nil {
			return nil, err
		}
		tree, err := e.ExecuteMulti(ctx, m)
		if err != nil {
			return nil, err
		}
		return tree["task"], nil
	}
}

// DebugBatches stages m and returns the batches the first phase would
// dispatch, sorted by (handler, batch key), without executing anything.
// Coalescing applies exactly as in a real run. Metrics, stats and the trace
// recorder are not touched.
func (e *Engine) DebugBatches(m *MultiTask) ([]Batch, error) {
	if m == nil {
		return nil, errors.Wrap(ErrNilTask, "multi task")
	}
	r := e.newRun(log.NewNopLogger(), false)
	r.phase = 1
	if err := r.stageMulti(m, r.skel.root()); err != nil {
		return nil, err
	}
	out := make([]Batch, 0, len(r.batchOrder))
	for _, gk := range r.batchOrder {
		pb := r.batches[gk]
		tasks := make(map[TaskID]Task, len(pb.tasks))
		for id, t := range pb.tasks {
			tasks[id] = t
		}
		out = append(out, Batch{
			Handler:     gk.handler,
			BatchKey:    gk.batchKey,
			Fingerprint: gk.fingerprint(),
			Tasks:       tasks,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Handler != out[j].Handler {
			return out[i].Handler < out[j].Handler
		}
		return out[i].BatchKey < out[j].BatchKey
	})
	return out, nil
}

func (e *Engine) newRun(logger log.Logger, observe bool) *run {
	return &run{
		registry:     e.registry,
		logger:       logger,
		metrics:      e.metrics,
		rec:          e.recorder,
		stats:        e.stats,
		maxPhases:    e.maxPhases,
		observe:      observe,
		batches:      make(map[groupKey]*pendingBatch),
		idsByTaskKey: make(map[dedupKey]TaskID),
		pending:      make(map[TaskID]pendingProgression),
		results:      make(map[TaskID]any),
		skel:         newSkeleton(),
		backRefs:     make(map[TaskID]int),
	}
}
