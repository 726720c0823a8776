package batchmux

import (
	"context"

	"github.com/pkg/errors"
)

// Tree is the result of executing a MultiTask. It mirrors the MultiTask's
// caller-key structure exactly: each slot holds either a leaf result (any
// value, possibly nil) or a nested Tree for a nested MultiTask. Caller keys
// and task IDs never share a representation, so no reserved characters
// exist.
type Tree map[string]any

// MultiTask is a caller-keyed collection of subtasks executed together.
//
// Caller keys only shape the result tree; they play no role in batching.
// Subtasks may be leaves, SequenceTasks or further MultiTasks. Subtask
// iteration follows insertion order, though callers must not rely on any
// inter-handler dispatch order.
type MultiTask struct {
	keys     []string
	subtasks map[string]Task
}

// Multi creates an empty MultiTask.
func Multi() *MultiTask {
	return &MultiTask{subtasks: make(map[string]Task)}
}

// Add registers a subtask under the given caller key. The key must be
// non-empty and unique within this MultiTask.
func (m *MultiTask) Add(callerKey string, t Task) error {
	if callerKey == "" {
		return errors.WithStack(ErrEmptyCallerKey)
	}
	if t == nil {
		return errors.Wrapf(ErrNilTask, "caller key %q", callerKey)
	}
	if _, exists := m.subtasks[callerKey]; exists {
		return errors.Wrapf(ErrDuplicateCallerKey, "caller key %q", callerKey)
	}
	m.keys = append(m.keys, callerKey)
	m.subtasks[callerKey] = t
	return nil
}

// Len returns the number of direct subtasks.
func (m *MultiTask) Len() int { return len(m.subtasks) }

// BatchingKeys implements Task. The multi kind is structural; it is never
// resolved through the registry.
func (m *MultiTask) BatchingKeys() BatchingKeys {
	return DefaultKeys(multiKind)
}

// Execute runs the scheduler over this MultiTask with a one-shot engine
// built from opts. For repeated runs sharing metrics and a registry, build
// an Engine once and call ExecuteMulti on it.
func (m *MultiTask) Execute(ctx context.Context, opts ...Option) (Tree, error) {
	e, err := NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	return e.ExecuteMulti(ctx, m)
}

// BatchesForDebugging returns the batches the first phase would dispatch,
// without executing anything. See Engine.DebugBatches.
func (m *MultiTask) BatchesForDebugging(opts ...Option) ([]Batch, error) {
	e, err := NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	return e.DebugBatches(m)
}
