package batchmux

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Results is the mutable result mapping a handler writes into. The handler
// must write one entry per input task ID; the engine does not interpret the
// values, so business-level failures belong in the value, not in the error
// return.
type Results map[TaskID]any

// Handler executes a batch of same-kind tasks.
//
// Every task in the batch shares this handler and the given batch key. A
// non-nil error aborts the whole run and propagates out of Execute wrapped
// with the handler ID and batch key (errors.Is and errors.Cause still reach
// the original); it is reserved for infrastructure failures, not for
// per-task outcomes.
type Handler interface {
	ExecuteBatch(ctx context.Context, batchKey string, tasks map[TaskID]Task, out Results) error
}

// Registry resolves handler IDs to Handler implementations.
//
// It is safe for concurrent use. A fresh registry already contains the
// built-in SimpleTask handler under SimpleHandlerID; registering the same ID
// again replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry pre-populated with the built-in SimpleTask
// handler.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register(SimpleHandlerID, NewSimpleHandler(1))
	return r
}

// Register binds a handler to the given ID, replacing any previous binding.
func (r *Registry) Register(id string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Get returns the handler bound to id, or ErrHandlerNotFound.
func (r *Registry) Get(id string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	if !ok {
		return nil, errors.Wrapf(ErrHandlerNotFound, "handler %q", id)
	}
	return h, nil
}

// Has reports whether a handler is bound to id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// IDs returns the registered handler IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
