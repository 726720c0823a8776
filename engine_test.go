package batchmux

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewEngineRejectsNegativePhaseCap(t *testing.T) {
	_, err := NewEngine(WithMaxPhases(-1))
	require.ErrorIs(t, err, ErrInvalidOption)
}

func TestExecuteSingleLeaf(t *testing.T) {
	h := &fetchHandler{}
	e := newFetchEngine(t, h)

	got, err := e.Execute(context.Background(), fetch("only"))
	require.NoError(t, err)
	require.Equal(t, "value:only", got)
}

func TestExecuteSingleSequence(t *testing.T) {
	h := &fetchHandler{}
	e := newFetchEngine(t, h)

	got, err := e.Execute(context.Background(), Sequence(fetch("a"), func(any) Task {
		return fetch("b")
	}))
	require.NoError(t, err)
	require.Equal(t, "value:b", got)
}

func TestExecuteSingleMulti(t *testing.T) {
	h := &fetchHandler{}
	e := newFetchEngine(t, h)

	m := Multi()
	mustAdd(t, m, "a", fetch("a"))

	got, err := e.Execute(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, Tree{"a": "value:a"}, got)
}

func TestExecuteNilTask(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilTask)
}

func TestDebugBatchesStagesWithoutExecuting(t *testing.T) {
	h := &fetchHandler{}
	reg := NewRegistry()
	reg.Register("fetch", h)
	e, err := NewEngine(WithRegistry(reg))
	require.NoError(t, err)

	ran := false
	m := Multi()
	mustAdd(t, m, "a", fetch("a"))
	mustAdd(t, m, "dup", fetch("a"))
	mustAdd(t, m, "us", fetchTask{key: "z", batchKey: "us"})
	mustAdd(t, m, "seq", Sequence(fetch("q"), func(any) Task { return nil }))
	mustAdd(t, m, "thunk", Simple(func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}))

	batches, err := e.DebugBatches(m)
	require.NoError(t, err)
	require.False(t, ran)
	require.Empty(t, h.batches)

	require.Len(t, batches, 3)
	require.Equal(t, "fetch", batches[0].Handler)
	require.Equal(t, DefaultBatchKey, batches[0].BatchKey)
	require.Len(t, batches[0].Tasks, 2) // a coalesced, q staged alongside
	require.Equal(t, "fetch", batches[1].Handler)
	require.Equal(t, "us", batches[1].BatchKey)
	require.Len(t, batches[1].Tasks, 1)
	require.Equal(t, SimpleHandlerID, batches[2].Handler)
	require.Len(t, batches[2].Tasks, 1)

	require.NotZero(t, batches[0].Fingerprint)
	require.NotEqual(t, batches[0].Fingerprint, batches[1].Fingerprint)
}

func TestDebugBatchesDoesNotRequireHandlers(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	m := Multi()
	mustAdd(t, m, "a", fetch("a"))

	batches, err := e.DebugBatches(m)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, "fetch", batches[0].Handler)
}

func TestEngineMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := &fetchHandler{}
	e := newFetchEngine(t, h, WithRegisterer(reg))

	m := Multi()
	mustAdd(t, m, "a", fetch("a"))
	mustAdd(t, m, "dup", fetch("a"))

	_, err := e.ExecuteMulti(context.Background(), m)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		m0 := mf.GetMetric()[0]
		switch {
		case m0.GetCounter() != nil:
			byName[mf.GetName()] = m0.GetCounter().GetValue()
		case m0.GetHistogram() != nil:
			byName[mf.GetName()] = float64(m0.GetHistogram().GetSampleCount())
		}
	}
	require.Equal(t, float64(1), byName["batchmux_scheduler_batches_dispatched_total"])
	require.Equal(t, float64(1), byName["batchmux_scheduler_tasks_dispatched_total"])
	require.Equal(t, float64(1), byName["batchmux_scheduler_tasks_coalesced_total"])
	require.Equal(t, float64(1), byName["batchmux_scheduler_run_phases"])
	require.Equal(t, float64(1), byName["batchmux_scheduler_batch_duration_seconds"])
}
