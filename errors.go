package batchmux

import "github.com/pkg/errors"

var (
	// ErrNilTask is returned when a nil task is submitted or produced.
	ErrNilTask = errors.New("nil task")

	// ErrEmptyCallerKey is returned by MultiTask.Add for an empty caller key.
	ErrEmptyCallerKey = errors.New("empty caller key")

	// ErrDuplicateCallerKey is returned by MultiTask.Add when the caller key
	// is already taken within the MultiTask.
	ErrDuplicateCallerKey = errors.New("duplicate caller key")

	// ErrHandlerNotFound is returned at dispatch time when a task names a
	// handler that was never registered.
	ErrHandlerNotFound = errors.New("handler not registered")

	// ErrInvalidKeys is returned when a leaf task reports batching keys the
	// scheduler cannot use, such as an empty handler ID.
	ErrInvalidKeys = errors.New("invalid batching keys")

	// ErrNilProgression is returned when a SequenceTask carries no
	// progression function.
	ErrNilProgression = errors.New("nil progression function")

	// ErrSequenceOverMulti is returned when a SequenceTask's base resolves
	// to a MultiTask. The engine rejects this shape: the multi's subtree is
	// not guaranteed to be settled when the progression would run.
	ErrSequenceOverMulti = errors.New("sequence base must not be a multi task")

	// ErrPhaseLimit is returned when a run exceeds the configured phase cap,
	// which usually indicates a progression chain that never terminates.
	ErrPhaseLimit = errors.New("phase limit exceeded")

	// ErrUnexpectedTaskKind is returned by a handler that received a task of
	// a kind it does not execute.
	ErrUnexpectedTaskKind = errors.New("unexpected task kind in batch")

	// ErrInvalidOption is returned by NewEngine for out-of-range options.
	ErrInvalidOption = errors.New("invalid option")
)
