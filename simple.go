package batchmux

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// SimpleHandlerID is the registry ID of the built-in thunk handler.
const SimpleHandlerID = "simple"

// Thunk is the unit of work wrapped by a SimpleTask. The returned value
// becomes the task's result; a non-nil error aborts the run.
type Thunk func(ctx context.Context) (any, error)

// SimpleTask wraps an opaque thunk. Simple tasks are never coalesced: each
// instance runs exactly once.
type SimpleTask struct {
	fn Thunk
}

// Simple creates a SimpleTask from a thunk.
func Simple(fn Thunk) *SimpleTask {
	return &SimpleTask{fn: fn}
}

// BatchingKeys implements Task. Simple tasks share one bucket and carry no
// task key.
func (t *SimpleTask) BatchingKeys() BatchingKeys {
	return DefaultKeys(SimpleHandlerID)
}

type simpleHandler struct {
	workers int
}

// NewSimpleHandler returns the handler backing SimpleTask. With workers <= 1
// thunks run sequentially in ascending task-ID order; with more workers the
// batch fans out over a bounded errgroup. Re-register it under
// SimpleHandlerID to change the concurrency of a registry.
func NewSimpleHandler(workers int) Handler {
	if workers < 1 {
		workers = 1
	}
	return &simpleHandler{workers: workers}
}

func (h *simpleHandler) ExecuteBatch(ctx context.Context, _ string, tasks map[TaskID]Task, out Results) error {
	ids := make([]TaskID, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if h.workers <= 1 {
		for _, id := range ids {
			st, err := asSimpleTask(tasks[id])
			if err != nil {
				return err
			}
			v, err := st.fn(ctx)
			if err != nil {
				return errors.Wrapf(err, "simple task %d", id)
			}
			out[id] = v
		}
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for _, id := range ids {
		st, err := asSimpleTask(tasks[id])
		if err != nil {
			return err
		}
		id := id
		g.Go(func() error {
			v, err := st.fn(gctx)
			if err != nil {
				return errors.Wrapf(err, "simple task %d", id)
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func asSimpleTask(t Task) (*SimpleTask, error) {
	st, ok := t.(*SimpleTask)
	if !ok {
		return nil, errors.Wrapf(ErrUnexpectedTaskKind, "%T is not a simple task", t)
	}
	if st.fn == nil {
		return nil, errors.Wrap(ErrNilTask, "simple task has nil thunk")
	}
	return st, nil
}
