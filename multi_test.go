package batchmux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiAddValidation(t *testing.T) {
	m := Multi()

	require.ErrorIs(t, m.Add("", fetch("x")), ErrEmptyCallerKey)
	require.ErrorIs(t, m.Add("a", nil), ErrNilTask)

	require.NoError(t, m.Add("a", fetch("x")))
	require.ErrorIs(t, m.Add("a", fetch("y")), ErrDuplicateCallerKey)
	require.Equal(t, 1, m.Len())
}

func TestMultiExecuteConvenience(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fetch", &fetchHandler{})

	m := Multi()
	require.NoError(t, m.Add("a", fetch("a")))

	tree, err := m.Execute(context.Background(), WithRegistry(reg))
	require.NoError(t, err)
	require.Equal(t, Tree{"a": "value:a"}, tree)
}

func TestMultiBatchesForDebugging(t *testing.T) {
	m := Multi()
	require.NoError(t, m.Add("a", fetch("a")))
	require.NoError(t, m.Add("b", fetchTask{key: "b", batchKey: "other"}))

	batches, err := m.BatchesForDebugging()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, DefaultBatchKey, batches[0].BatchKey)
	require.Equal(t, "other", batches[1].BatchKey)
}
